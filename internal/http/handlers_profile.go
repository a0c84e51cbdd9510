package http

import (
	"net/http"

	"balancio/internal/auth"
	"balancio/internal/services"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	u, err := s.svc.Profiles.Get(r.Context(), sess)
	if err != nil {
		s.fail(w, r, "get_profile", err)
		return
	}
	NewResponse().JSON(services.NewUserView(u)).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "update_profile", err)
		return
	}
	u, err := s.svc.Profiles.Update(r.Context(), sess, req.toUpdate())
	if err != nil {
		s.fail(w, r, "update_profile", err)
		return
	}
	NewResponse().JSON(services.NewUserView(u)).Write(w)
}
