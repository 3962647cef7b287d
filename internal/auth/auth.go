// Package auth verifies Shopify session tokens on embedded-app API calls.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/productbridge/productbridge/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const shopContextKey contextKey = "shop"

// Config holds session-token verification settings. An empty APISecret
// disables verification.
type Config struct {
	APIKey     string
	APISecret  string
	ShopDomain string
	Leeway     time.Duration
}

// Enabled reports whether tokens are checked.
func (c Config) Enabled() bool {
	return c.APISecret != ""
}

// SessionClaims are the claims Shopify App Bridge puts in a session token.
type SessionClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// Shop returns the shop host named by the dest claim.
func (c *SessionClaims) Shop() string {
	u, err := url.Parse(c.Dest)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// GenerateSessionToken signs a session token for shop. Used by local tooling
// and tests; in production App Bridge issues the tokens.
func GenerateSessionToken(shop, apiKey, secret string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Dest: "https://" + shop,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shop + "/admin",
			Audience:  jwt.ClaimStrings{apiKey},
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateSessionToken checks the signature, lifetime, audience and shop of
// a session token.
func ValidateSessionToken(tokenString string, cfg Config) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.APIKey != "" {
		opts = append(opts, jwt.WithAudience(cfg.APIKey))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.APISecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	shop := claims.Shop()
	if shop == "" {
		return nil, errors.New("token has no destination shop")
	}
	if cfg.ShopDomain != "" && shop != strings.ToLower(cfg.ShopDomain) {
		return nil, fmt.Errorf("token issued for %s", shop)
	}
	return claims, nil
}

// Middleware rejects requests without a valid session token. It is a no-op
// when verification is disabled.
func Middleware(cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header required")
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(tokenString) == "" {
				unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := ValidateSessionToken(strings.TrimSpace(tokenString), cfg)
			if err != nil {
				logger.Warn("session token rejected", "path", r.URL.Path, "error", err)
				unauthorized(w, "Invalid or expired session token")
				return
			}

			ctx := context.WithValue(r.Context(), shopContextKey, claims.Shop())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ShopFromContext returns the shop of the verified session token.
func ShopFromContext(ctx context.Context) (string, bool) {
	shop, ok := ctx.Value(shopContextKey).(string)
	return shop, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	ue := models.NewUserError(models.CodeAuthUnauthorized, message).
		WithSuggestion("Reload the app from the Shopify admin.")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": ue})
}
