package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"balancio/internal/auth"
	"balancio/internal/log"
	"balancio/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "register", err)
		return
	}
	res, err := s.svc.Auth.Register(r.Context(), req.toRegistration())
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(newAuthResponse(res)).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "login", err)
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	NewResponse().JSON(newAuthResponse(res)).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	s.svc.Auth.Logout(r.Context(), sess)
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.svc.Broker == nil {
		NotFoundError("oauth is not configured").Write(w)
		return
	}
	authURL, state, err := s.svc.Broker.Start(auth.Provider(r.PathValue("provider")))
	if err != nil {
		s.fail(w, r, "oauth_start", err)
		return
	}
	NewResponse().JSON(map[string]string{"authUrl": authURL, "state": state}).Write(w)
}

// handleOAuthCallback is the provider redirect target. It answers the
// browser popup; the token goes to the client blocked in handleOAuthWait.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.svc.Broker == nil {
		NotFoundError("oauth is not configured").Write(w)
		return
	}
	p := auth.Provider(r.PathValue("provider"))
	q := r.URL.Query()
	state := q.Get("state")
	if state == "" {
		s.fail(w, r, "oauth_callback", badRequest("missing state"))
		return
	}

	var err error
	if e := q.Get("error"); e != "" {
		desc := strings.TrimSpace(q.Get("error_description"))
		err = s.svc.Broker.Fail(p, state, fmt.Errorf("provider refused sign-in: %s %s", e, desc))
		if err == nil {
			err = errors.New("sign-in was cancelled")
		}
	} else {
		err = s.svc.Broker.Complete(r.Context(), p, state, q.Get("code"))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		s.logger.WarnContext(r.Context(), "OAuth callback failed", log.FieldProvider, p, log.FieldError, err)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("Sign-in failed. You can close this window and try again.\n"))
		return
	}
	_, _ = w.Write([]byte("Sign-in complete. You can close this window.\n"))
}

// handleOAuthWait blocks until the flow named by state completes.
func (s *Server) handleOAuthWait(w http.ResponseWriter, r *http.Request) {
	if s.svc.Broker == nil {
		NotFoundError("oauth is not configured").Write(w)
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		s.fail(w, r, "oauth_wait", badRequest("missing state"))
		return
	}

	token, err := s.svc.Broker.Wait(r.Context(), state)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if statusFor(err) == http.StatusInternalServerError {
			// provider and login failures were already logged by the broker
			ErrorResponse(http.StatusUnauthorized, "oauth sign-in failed").Write(w)
			return
		}
		s.fail(w, r, "oauth_wait", err)
		return
	}

	sess, err := s.svc.Tokens.Verify(token)
	if err != nil {
		s.fail(w, r, "oauth_wait", err)
		return
	}
	u, err := s.svc.Profiles.Get(r.Context(), sess)
	if err != nil {
		s.fail(w, r, "oauth_wait", err)
		return
	}
	NewResponse().JSON(authResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: services.NewUserView(u)}).Write(w)
}
