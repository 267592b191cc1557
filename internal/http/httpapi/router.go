package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/text/language"

	"reelforge/internal/http/handlers"
	"reelforge/internal/infra"
	"reelforge/internal/middleware"
)

type Options struct {
	Logger          infra.Logger
	JWTSecret       string
	DefaultLocale   string
	Languages       []language.Tag
	CountryLookup   middleware.CountryLookup
	CORSOrigins     []string
	RateLimitPerMin int
	// Static serves stored artifacts under /static when set.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.Locale(middleware.LocaleOptions{
			Default:   opts.DefaultLocale,
			Supported: opts.Languages,
			Lookup:    opts.CountryLookup,
		}),
	)

	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static", opts.Static))
	}

	sessions := middleware.NewLimiter(opts.RateLimitPerMin, time.Minute, middleware.ByClientIP).Middleware(app.AuthError)
	// One bucket per user across every endpoint that spends provider calls.
	limited := middleware.NewLimiter(opts.RateLimitPerMin, time.Minute, middleware.ByUserOrIP).Middleware(app.AuthError)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.With(sessions).Post("/auth/session", app.AuthSession)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret, app.AuthError))
			r.Get("/me", app.Me)

			r.Route("/videos", func(r chi.Router) {
				r.Get("/", app.ListVideos)
				r.With(limited).Post("/", app.CreateVideo)
				r.With(limited).Post("/generate", app.GenerateVideo)

				r.Route("/{video_id}", func(r chi.Router) {
					r.Get("/", app.GetVideo)
					r.Get("/status", app.VideoStatus)
					r.With(limited).Post("/script", app.RetryScript)
					r.With(limited).Post("/voice", app.StartVoice)
					r.With(limited).Post("/assemble", app.StartAssembly)
					r.Post("/reset", app.ResetVideo)
				})
			})
		})
	})

	return r
}
