package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/handler/api"
	"github.com/golang-jwt/jwt/v4"
)

const (
	DefaultIssuer   = "core"
	DefaultAudience = "videos"
	defaultSkew     = 30 * time.Second
)

// AuthConfig describes which short-lived tokens (DST) the admission routes accept.
type AuthConfig struct {
	// PublicKeyPEM is the RS256 key of the issuer. Empty disables authentication.
	PublicKeyPEM string
	Issuer       string
	Audience     string
	// ClockSkew is how far in the future an iat may be.
	ClockSkew time.Duration
}

// WithDSTAuth validates a Bearer JWT signed by the core service and stores its subject
// and roles in the request context.
func WithDSTAuth(cfg AuthConfig) (func(http.Handler) http.Handler, error) {
	if cfg.PublicKeyPEM == "" {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultSkew
	}

	pubKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT public key: %w", err)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}))
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pubKey, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				api.WriteError(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !tok.Valid {
				api.WriteError(w, http.StatusUnauthorized, "unauthorized", err)
				return
			}
			if reason := checkClaims(claims, cfg, time.Now()); reason != "" {
				api.WriteError(w, http.StatusUnauthorized, reason, nil)
				return
			}

			sub, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), api_context.AuthUserIDKey, sub)
			ctx = context.WithValue(ctx, api_context.AuthRolesKey, toStringSlice(claims["roles"]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// checkClaims returns why claims are rejected, or "" when they are acceptable.
func checkClaims(claims jwt.MapClaims, cfg AuthConfig, now time.Time) string {
	switch {
	case !claims.VerifyIssuer(cfg.Issuer, true):
		return "bad issuer"
	case !claims.VerifyAudience(cfg.Audience, true):
		return "bad audience"
	case !claims.VerifyExpiresAt(now.Unix(), true):
		return "token expired"
	}
	if iat, ok := asInt64(claims["iat"]); ok && time.Unix(iat, 0).After(now.Add(cfg.ClockSkew)) {
		return "invalid iat"
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return "missing sub"
	}
	return ""
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int64:
		return x, true
	case json.Number:
		i, err := x.Int64()
		if err == nil {
			return i, true
		}
	}
	return 0, false
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
