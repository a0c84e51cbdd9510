package http

import (
	"net/http"

	"balancio/internal/auth"
	"balancio/internal/services"
)

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	b, err := s.svc.Budgets.GetBudget(r.Context(), sess)
	if err != nil {
		s.fail(w, r, "get_budget", err)
		return
	}
	NewResponse().JSON(newBudgetResponse(b)).Write(w)
}

func (s *Server) handleSaveBudget(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "save_budget", err)
		return
	}
	in, err := req.toBudget()
	if err != nil {
		s.fail(w, r, "save_budget", err)
		return
	}
	b, err := s.svc.Budgets.SaveBudget(r.Context(), sess, in)
	if err != nil {
		s.fail(w, r, "save_budget", err)
		return
	}
	NewResponse().JSON(newBudgetResponse(b)).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.svc.Budgets.DeleteBudget(r.Context(), sess); err != nil {
		s.fail(w, r, "delete_budget", err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleBudgetOverview(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	ov := s.svc.Budgets.Overview(r.Context(), sess)
	NewResponse().JSON(services.NewOverviewView(ov)).Write(w)
}

func (s *Server) handleAlertDiagnostics(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	NewResponse().JSON(s.svc.Budgets.Diagnostics(r.Context(), sess)).Write(w)
}

func (s *Server) handleTestBudgetAlert(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	NewResponse().JSON(s.svc.Budgets.TestAlert(r.Context(), sess)).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	ev := s.svc.Budgets.Dashboard(r.Context(), sess)
	NewResponse().JSON(services.NewDashboardView(ev.Dashboard, ev.Categories)).Write(w)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if s.svc.Hub == nil {
		NotFoundError("realtime updates are not enabled").Write(w)
		return
	}
	s.svc.Hub.ServeWS(w, r, sess.UserID)
}
