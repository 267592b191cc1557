// Package google verifies Google-issued OpenID Connect ID tokens.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultIssuer = "https://accounts.google.com"

var (
	ErrInvalidToken = errors.New("google: invalid id token")
	ErrExpired      = errors.New("google: id token expired")
)

// Identity is the subset of ID token claims used to sign a user in.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type idClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Options struct {
	ClientID string
	Issuer   string
	// JWKSURL skips discovery when set.
	JWKSURL        string
	HTTPClient     *http.Client
	Now            func() time.Time
	OnRefreshError func(error)
}

// Verifier checks RS256 ID tokens against the issuer's published keys. The
// key set is fetched on first use and refreshed hourly or on an unknown kid.
type Verifier struct {
	opts   Options
	issuer string
	client *http.Client
	now    func() time.Time

	mu   sync.Mutex
	keys *keyfunc.JWKS
}

func NewVerifier(opts Options) (*Verifier, error) {
	opts.ClientID = strings.TrimSpace(opts.ClientID)
	if opts.ClientID == "" {
		return nil, errors.New("google: client id is required")
	}
	issuer := strings.TrimRight(strings.TrimSpace(opts.Issuer), "/")
	if issuer == "" {
		issuer = DefaultIssuer
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{opts: opts, issuer: issuer, client: client, now: now}, nil
}

// VerifyIdentity validates token and returns the signed-in identity.
func (v *Verifier) VerifyIdentity(ctx context.Context, token string) (Identity, error) {
	var claims idClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(t *jwt.Token) (any, error) {
		keys, err := v.keySet(ctx)
		if err != nil {
			return nil, err
		}
		return keys.Keyfunc(t)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.opts.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !v.issuerMatches(claims.Issuer) {
		return Identity{}, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return Identity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Close stops the background key refresh.
func (v *Verifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil {
		v.keys.EndBackground()
		v.keys = nil
	}
	return nil
}

// issuerMatches accepts the issuer with or without its scheme, as Google
// emits both forms.
func (v *Verifier) issuerMatches(iss string) bool {
	return iss == v.issuer || "https://"+iss == v.issuer
}

func (v *Verifier) keySet(ctx context.Context) (*keyfunc.JWKS, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil {
		return v.keys, nil
	}
	url := v.opts.JWKSURL
	if url == "" {
		var err error
		if url, err = v.discover(ctx); err != nil {
			return nil, err
		}
	}
	keys, err := keyfunc.Get(url, keyfunc.Options{
		Client:              v.client,
		RefreshErrorHandler: v.opts.OnRefreshError,
		RefreshInterval:     time.Hour,
		RefreshRateLimit:    5 * time.Minute,
		RefreshTimeout:      10 * time.Second,
		RefreshUnknownKID:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("google: load signing keys: %w", err)
	}
	v.keys = keys
	return keys, nil
}

func (v *Verifier) discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("google: discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google: discovery: status %d", resp.StatusCode)
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("google: decode discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("google: discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}
