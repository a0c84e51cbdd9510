package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"balancio/internal/log"
)

// Verifier checks a raw token.
type Verifier interface {
	Verify(token string) (Session, error)
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades that cannot set
// headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid session and stores the
// session in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			s, err := v.Verify(token)
			if err != nil {
				log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected session token",
					log.FieldPath, r.URL.Path, log.FieldError, err)
				unauthorized(w, err.Error())
				return
			}
			logger := log.FromContext(r.Context()).With(log.FieldUserID, s.UserID)
			ctx := log.NewContext(NewContext(r.Context(), s), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="balancio"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
