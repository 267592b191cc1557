package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every session token.
const Issuer = "reelforge"

// TokenClaims is the session token payload.
type TokenClaims struct {
	jwt.RegisteredClaims
	Locale string `json:"locale,omitempty"`
}

var (
	ErrTokenMalformed = errors.New("invalid token")
	ErrTokenSignature = errors.New("invalid signature")
	ErrTokenExpired   = errors.New("token expired")
)

type userKey string

const (
	userIDKey userKey = "user_id"
)

// ErrorWriter renders an error response for a rejected request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code string)

// SignJWT signs claims with HS256.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// IssueSession signs a token for the user valid for ttl.
func IssueSession(secret, userID, locale string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	token, err := SignJWT(secret, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Locale: locale,
	})
	return token, exp, err
}

// VerifyJWT checks the signature, expiry and issuer of a session token.
func VerifyJWT(secret, token string) (*TokenClaims, error) {
	var claims TokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenSignature
	default:
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return &claims, nil
}

// AuthJWT requires a valid bearer token and stores its subject in the context.
// The session's locale claim applies unless the request stated a preference.
func AuthJWT(secret string, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, code string) {
			http.Error(w, code, status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				onError(w, r, http.StatusUnauthorized, "missing_authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				onError(w, r, http.StatusUnauthorized, "invalid_authorization")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, ErrTokenExpired) {
					code = "token_expired"
				}
				onError(w, r, http.StatusUnauthorized, code)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = withClaimLocale(ctx, claims.Locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}
