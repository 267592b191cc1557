package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type localeStateKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

var defaultLocales = []language.Tag{language.English, language.French}

// DefaultRegionLocales maps countries to the locale their visitors get when
// nothing else in the request states a preference.
var DefaultRegionLocales = map[string]string{
	"FR": "fr", "BE": "fr", "CH": "fr", "LU": "fr", "MC": "fr", "SN": "fr",
	"CI": "fr", "CM": "fr", "MA": "fr", "TN": "fr", "DZ": "fr", "HT": "fr",
}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

type LocaleOptions struct {
	// Default applies when the request carries no usable hint.
	Default string
	// Supported lists the locales messages exist for. The first is the
	// fallback for unmatched tags.
	Supported     []language.Tag
	Lookup        CountryLookup
	RegionLocales map[string]string
}

type localeState struct {
	explicit bool
	neg      *negotiator
}

type negotiator struct {
	supported []language.Tag
	matcher   language.Matcher
	fallback  string
	regions   map[string]string
	lookup    CountryLookup
}

func newNegotiator(opts LocaleOptions) *negotiator {
	supported := opts.Supported
	if len(supported) == 0 {
		supported = defaultLocales
	}
	regions := opts.RegionLocales
	if regions == nil {
		regions = DefaultRegionLocales
	}
	n := &negotiator{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		regions:   regions,
		lookup:    opts.Lookup,
	}
	n.fallback = n.normalize(opts.Default)
	return n
}

var fallbackNegotiator = newNegotiator(LocaleOptions{})

// Locale resolves the request locale and country. Precedence: the lang query
// parameter, X-Locale, Accept-Language, the country's regional default, then
// the configured default.
func Locale(opts LocaleOptions) func(http.Handler) http.Handler {
	n := newNegotiator(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, n.lookup)
			locale, explicit := n.detect(r, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			ctx = context.WithValue(ctx, localeStateKey{}, &localeState{explicit: explicit, neg: n})
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (n *negotiator) detect(r *http.Request, country string) (string, bool) {
	if v := strings.TrimSpace(r.URL.Query().Get("lang")); v != "" {
		return n.normalize(v), true
	}
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return n.normalize(v), true
	}
	if v := n.accept(r.Header.Get("Accept-Language")); v != "" {
		return v, true
	}
	if locale, ok := n.regions[country]; ok {
		return n.normalize(locale), false
	}
	return n.fallback, false
}

func (n *negotiator) accept(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, _ := n.matcher.Match(tags...)
	return baseOf(n.supported[idx])
}

func (n *negotiator) normalize(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return baseOf(n.supported[0])
	}
	_, idx, _ := n.matcher.Match(tag)
	return baseOf(n.supported[idx])
}

func baseOf(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

// NormalizeLocale maps any language tag onto a built-in locale.
func NormalizeLocale(locale string) string {
	return fallbackNegotiator.normalize(locale)
}

// withClaimLocale applies a session's stored locale unless the request
// stated its own preference.
func withClaimLocale(ctx context.Context, claim string) context.Context {
	if strings.TrimSpace(claim) == "" {
		return ctx
	}
	state, _ := ctx.Value(localeStateKey{}).(*localeState)
	if state != nil && state.explicit {
		return ctx
	}
	n := fallbackNegotiator
	if state != nil {
		n = state.neg
	}
	return context.WithValue(ctx, LocaleKey, n.normalize(claim))
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

var countryHeaders = []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"}

// ResolveCountry returns a best-effort upper-case ISO country code from proxy
// headers, a regional language tag or the IP lookup, in that order.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range countryHeaders {
		if val := strings.TrimSpace(r.Header.Get(key)); len(val) == 2 {
			return strings.ToUpper(val)
		}
	}
	for _, hint := range []string{r.Header.Get("X-Locale"), r.Header.Get("Accept-Language")} {
		if region := regionOf(hint); region != "" {
			return region
		}
	}
	if lookup == nil {
		return ""
	}
	if ip := ClientIP(r); ip != "" {
		if country, err := lookup(ip); err == nil && country != "" {
			return strings.ToUpper(country)
		}
	}
	return ""
}

// regionOf extracts the region of the first tag in a language list.
func regionOf(list string) string {
	first := strings.TrimSpace(strings.Split(list, ",")[0])
	first = strings.TrimSpace(strings.Split(first, ";")[0])
	if first == "" {
		return ""
	}
	tag, err := language.Parse(first)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf != language.Exact {
		return ""
	}
	return region.String()
}

// ClientIP returns the first valid X-Forwarded-For address, else the remote
// host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
