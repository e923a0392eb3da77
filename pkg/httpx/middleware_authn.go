package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/slogx"
)

// AccessVerifier is the part of the token codec the middleware needs.
type AccessVerifier interface {
	VerifyAccessToken(raw string) (jwtx.AccessPayload, error)
}

// AuthnMiddleware requires a valid bearer access token and stores its payload
// on the request context.
func AuthnMiddleware(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw := BearerToken(r)
			if raw == "" {
				writeBearerError(w, "missing bearer token")
				return
			}

			p, err := v.VerifyAccessToken(raw)
			if err != nil {
				if errors.Is(err, jwtx.ErrTokenExpired) {
					writeBearerError(w, "token expired")
					return
				}
				log.Warn("access token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = slogx.WithUser(ContextWithAuth(ctx, p), p.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	ErrInvalidToken.WriteError(w)
}
