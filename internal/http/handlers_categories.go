package http

import (
	"net/http"

	"balancio/internal/auth"
	"balancio/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	kind, err := ParseKind(r.URL.Query())
	if err != nil {
		s.fail(w, r, "list_categories", err)
		return
	}
	cats, err := s.svc.Categories.List(r.Context(), sess, kind)
	if err != nil {
		s.fail(w, r, "list_categories", err)
		return
	}
	views := make([]services.CategoryView, 0, len(cats))
	for _, c := range cats {
		views = append(views, services.NewCategoryView(c))
	}
	NewResponse().JSON(views).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "create_category", err)
		return
	}
	c, err := s.svc.Categories.Create(r.Context(), sess, req.toCategory())
	if err != nil {
		s.fail(w, r, "create_category", err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(services.NewCategoryView(c)).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req categoryUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "update_category", err)
		return
	}
	c, err := s.svc.Categories.Update(r.Context(), sess, r.PathValue("id"), req.toCategory())
	if err != nil {
		s.fail(w, r, "update_category", err)
		return
	}
	NewResponse().JSON(services.NewCategoryView(c)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.svc.Categories.Delete(r.Context(), sess, r.PathValue("id")); err != nil {
		s.fail(w, r, "delete_category", err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
