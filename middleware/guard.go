package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shiftboard/shiftauth"
)

// Validator is the subset of *shiftauth.Service used by Guard.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*shiftauth.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal injected by Guard.
func PrincipalFromContext(ctx context.Context) (*shiftauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*shiftauth.Principal)
	return p, ok
}

// Guard rejects requests without a valid access token. Infrastructure
// failures yield 503, everything else 401.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="shiftauth"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			p, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				if errors.Is(err, shiftauth.ErrServiceUnavailable) {
					writeError(w, http.StatusServiceUnavailable, shiftauth.Code(err))
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="shiftauth", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, shiftauth.Code(err))
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
