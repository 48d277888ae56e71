package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"helpdesk/pkg/requestcontext"
)

// ActorFromJWT observes the caller's identity for audit attribution. It
// parses a Bearer token and, when valid, attaches the claims as the request
// actor. It never rejects a request: authorization is enforced elsewhere, and
// an absent or invalid token simply leaves the caller anonymous.
func ActorFromJWT(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := identityFromToken(token, signingKey)
			if err != nil {
				logger.DebugContext(r.Context(), "actor token not usable for audit attribution",
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := requestcontext.WithActor(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromToken(token string, signingKey []byte) (requestcontext.Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return requestcontext.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return requestcontext.Identity{}, fmt.Errorf("token invalid")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return requestcontext.Identity{}, fmt.Errorf("token has no subject")
	}

	return requestcontext.Identity{
		ID:        sub,
		Email:     stringClaim(claims, "email"),
		Role:      stringClaim(claims, "role"),
		SessionID: stringClaim(claims, "sid"),
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
