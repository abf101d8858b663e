package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/core"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// Claims are the bearer token claims. Subject is the acting user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(cfg config.AuthConfig, userID string, now time.Time) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("AUTH_JWT_SECRET is not set")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// ParseToken verifies tokenStr and returns the subject.
func ParseToken(cfg config.AuthConfig, tokenStr string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// Auth resolves the acting user from the Authorization header and stores it
// with core.ContextWithUserID.
//
// When cfg.Required is false, requests without a header run as cfg.DevUserID.
// A header that is present is always verified.
func Auth(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if cfg.Required {
					slog.Warn("auth: missing bearer token",
						"path", r.URL.Path,
						"method", r.Method,
						"remote_addr", r.RemoteAddr,
					)
					writeAuthError(w, errMissingToken)
					return
				}
				ctx := core.ContextWithUserID(r.Context(), cfg.DevUserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			scheme, tokenStr, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				writeAuthError(w, errInvalidToken)
				return
			}

			userID, err := ParseToken(cfg, strings.TrimSpace(tokenStr))
			if err != nil {
				slog.Warn("auth: invalid token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, err)
				return
			}

			ctx := core.ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	msg := core.MapError(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="cocaresync"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   msg.Message,
		"message": msg.Message,
		"action":  msg.Action,
		"code":    msg.Code,
	})
}
