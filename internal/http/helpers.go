package http

import (
	"mime"
	"net/http"
	"strings"

	"balancio/internal/auth"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// attachment returns a Content-Disposition value for a download.
func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

// sessionHandler is a handler that runs behind auth.Middleware.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess auth.Session)

// authed wraps h with token verification and hands it the session.
func (s *Server) authed(h sessionHandler) http.Handler {
	return auth.Middleware(s.svc.Tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.FromContext(r.Context())
		if !ok {
			ErrorResponse(http.StatusUnauthorized, "missing session").Write(w)
			return
		}
		h(w, r, sess)
	}))
}
