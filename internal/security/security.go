// Package security implements C4, the Security Verifier: per-user,
// per-operation authorization. Grounded directly on the teacher's
// internal/auth/auth.go — same JWKS cache (RWMutex + TTL refresh) and bearer
// token claims extraction — generalized from an HTTP middleware into the
// Authorize(ctx, operation) call the Local Repository Wrapper
// makes per spec §4.1 step (b).
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nucleus/omrs-core/internal/config"
)

// Principal is the authenticated caller identity, extracted from JWT claims.
type Principal struct {
	Subject   string
	Issuer    string
	Audience  []string
	ProjectID string
	Roles     []string
	Expires   int64
}

type principalKey struct{}

// FromContext extracts the Principal stashed in ctx, defaulting to anonymous.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok {
		return p
	}
	return &Principal{Subject: "anonymous"}
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Verifier is C4: authorizes every wrapper call.
type Verifier interface {
	// Authorize returns a non-nil error if the principal in ctx may not
	// perform operation; the wrapper reports that error as
	// KindUserNotAuthorized (see internal/omrserrors).
	Authorize(ctx context.Context, operation string) error
}

// JWTVerifier authorizes by validating a bearer token against a JWKS
// endpoint, mirroring the teacher's auth.Middleware.
type JWTVerifier struct {
	cfg   *config.Config
	cache *jwksCache
}

func NewJWTVerifier(cfg *config.Config) *JWTVerifier {
	return &JWTVerifier{
		cfg:   cfg,
		cache: &jwksCache{url: cfg.JWKSUrl, refresh: 15 * time.Minute},
	}
}

// AuthenticateRequest validates the Authorization header of an inbound HTTP
// request and returns the resulting Principal, the same shape the teacher's
// Middleware produced, but as a callable step rather than an http.Handler
// wrapper so internal/apiserver can compose it with other concerns.
func (v *JWTVerifier) AuthenticateRequest(r *http.Request) (*Principal, error) {
	authHeader := r.Header.Get("Authorization")

	if v.cfg.JWKSUrl == "" || authHeader == "" {
		if userID := r.Header.Get("X-User-Id"); userID != "" {
			return &Principal{Subject: userID}, nil
		}
		return &Principal{Subject: "anonymous"}, nil
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("invalid authorization header")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	return v.validateToken(tokenString)
}

func (v *JWTVerifier) validateToken(tokenString string) (*Principal, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing kid in token header")
	}

	key, err := v.cache.GetKey(kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get signing key: %w", err)
	}

	validated, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithIssuer(v.cfg.AuthIssuer), jwt.WithAudience(v.cfg.AuthAudience))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := validated.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	p := &Principal{
		Subject: getStringClaim(claims, "sub"),
		Issuer:  getStringClaim(claims, "iss"),
	}
	if aud, ok := claims["aud"].([]interface{}); ok {
		for _, a := range aud {
			if s, ok := a.(string); ok {
				p.Audience = append(p.Audience, s)
			}
		}
	} else if aud, ok := claims["aud"].(string); ok {
		p.Audience = []string{aud}
	}
	if exp, ok := claims["exp"].(float64); ok {
		p.Expires = int64(exp)
	}
	if projectID, ok := claims["project_id"].(string); ok {
		p.ProjectID = projectID
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	return p, nil
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// Authorize implements Verifier. With no JWKS URL configured every principal,
// anonymous included, may proceed; with one configured, any principal other
// than anonymous may proceed. The principal's roles and project are not
// consulted, and no operation is treated differently from another.
func (v *JWTVerifier) Authorize(ctx context.Context, operation string) error {
	p := FromContext(ctx)
	if v.cfg.JWKSUrl == "" {
		return nil
	}
	if p.Subject == "" || p.Subject == "anonymous" {
		return fmt.Errorf("operation %s requires an authenticated principal", operation)
	}
	return nil
}

// =============================================================================
// JWKS CACHE
// =============================================================================

type jwksCache struct {
	url     string
	refresh time.Duration

	mu        sync.RWMutex
	keys      map[string]interface{}
	fetchedAt time.Time
}

type jwksResponse struct {
	Keys []json.RawMessage `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *jwksCache) GetKey(kid string) (interface{}, error) {
	c.mu.RLock()
	if time.Since(c.fetchedAt) < c.refresh && c.keys != nil {
		if key, ok := c.keys[kid]; ok {
			c.mu.RUnlock()
			return key, nil
		}
	}
	c.mu.RUnlock()

	if err := c.fetch(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key %s not found in JWKS", kid)
}

func (c *jwksCache) fetch() error {
	if c.url == "" {
		return fmt.Errorf("JWKS URL not configured")
	}

	resp, err := http.Get(c.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS request failed with status %d", resp.StatusCode)
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]interface{})
	for _, rawKey := range jwks.Keys {
		var key jwkKey
		if err := json.Unmarshal(rawKey, &key); err != nil {
			continue
		}
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pubKey
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return nil
}

// parseRSAPublicKey is a deliberate stub, matching the teacher's own
// placeholder: full RSA key parsing belongs in a dedicated JWKS library
// (e.g. lestrrat-go/jwx). Until it is wired in, every key in a fetched JWKS
// document fails to parse, jwksCache.fetch populates an empty key set, and
// JWTVerifier.AuthenticateRequest's bearer-token path can never validate a
// real signature — callers needing working JWKS auth must supply their own
// Verifier rather than rely on this one.
func parseRSAPublicKey(nBase64, eBase64 string) (interface{}, error) {
	return nil, fmt.Errorf("RSA key parsing not yet implemented - use a JWKS library for production")
}

// AllowAllVerifier is a Verifier that authorizes everything. Used in tests
// and single-process demos where no security connection is configured
// (spec §6 names securityConnection as opaque/optional-at-dev-time).
type AllowAllVerifier struct{}

func (AllowAllVerifier) Authorize(context.Context, string) error { return nil }
