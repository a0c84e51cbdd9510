package http

import (
	"errors"
	"net/http"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/log"
	"balancio/internal/ofx"
	"balancio/internal/services"
)

const maxStatementBytes = 10 << 20

type transactionList struct {
	Transactions []services.TransactionView `json:"transactions"`
	Count        int                        `json:"count"`
}

func (s *Server) categoriesOf(r *http.Request, sess auth.Session) []core.Category {
	cats, err := s.svc.Categories.List(r.Context(), sess, "")
	if err != nil {
		// names are cosmetic in responses
		s.logger.WarnContext(r.Context(), "Failed to load category names", log.FieldError, err)
	}
	return cats
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, "list_transactions", err)
		return
	}
	txs, err := s.svc.Transactions.List(r.Context(), sess, f)
	if err != nil {
		s.fail(w, r, "list_transactions", err)
		return
	}
	views := services.NewTransactionViews(txs, s.categoriesOf(r, sess))
	NewResponse().JSON(transactionList{Transactions: views, Count: len(views)}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	t, err := s.svc.Transactions.Get(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "get_transaction", err)
		return
	}
	views := services.NewTransactionViews([]core.Transaction{t}, s.categoriesOf(r, sess))
	NewResponse().JSON(views[0]).Write(w)
}

func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, error) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return core.Transaction{}, err
	}
	return req.toTransaction()
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	in, err := s.decodeTransaction(w, r)
	if err != nil {
		s.fail(w, r, "create_transaction", err)
		return
	}
	t, err := s.svc.Transactions.Create(r.Context(), sess, in)
	if err != nil {
		s.fail(w, r, "create_transaction", err)
		return
	}
	views := services.NewTransactionViews([]core.Transaction{t}, s.categoriesOf(r, sess))
	NewResponse().Status(http.StatusCreated).Header("Location", "/api/transactions/"+t.ID).JSON(views[0]).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	in, err := s.decodeTransaction(w, r)
	if err != nil {
		s.fail(w, r, "update_transaction", err)
		return
	}
	t, err := s.svc.Transactions.Update(r.Context(), sess, r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "update_transaction", err)
		return
	}
	views := services.NewTransactionViews([]core.Transaction{t}, s.categoriesOf(r, sess))
	NewResponse().JSON(views[0]).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.svc.Transactions.Delete(r.Context(), sess, r.PathValue("id")); err != nil {
		s.fail(w, r, "delete_transaction", err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	q := r.URL.Query()
	format, err := ParseReportFormat(q)
	if err != nil {
		s.fail(w, r, "export_transactions", err)
		return
	}
	f, err := ParseTransactionFilter(q)
	if err != nil {
		s.fail(w, r, "export_transactions", err)
		return
	}
	file, err := s.svc.Transactions.Export(r.Context(), sess, format, f)
	if err != nil {
		s.fail(w, r, "export_transactions", err)
		return
	}
	NewResponse().
		Header("Content-Type", file.ContentType).
		Header("Content-Disposition", attachment(file.Filename)).
		Body(file.Body).
		Write(w)
}

// handleImportTransactions accepts a multipart upload with the statement in
// the "file" field.
func (s *Server) handleImportTransactions(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxStatementBytes)
	if err := r.ParseMultipartForm(maxStatementBytes); err != nil {
		s.fail(w, r, "import_transactions", badRequest("expected a multipart upload", err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, "import_transactions", badRequest("missing file field"))
		return
	}
	defer file.Close()

	stmt, err := s.svc.Statements.Parse(r.Context(), file)
	if err != nil {
		if errors.Is(err, ofx.ErrNoStatements) {
			s.fail(w, r, "import_transactions", invalid("statement has no transactions", header.Filename))
			return
		}
		s.fail(w, r, "import_transactions", invalid("could not read statement", err.Error()))
		return
	}

	res, err := s.svc.Transactions.Import(r.Context(), sess, stmt.Entries)
	if err != nil {
		s.fail(w, r, "import_transactions", err)
		return
	}
	res.Parsed += stmt.Skipped
	res.Skipped += stmt.Skipped
	NewResponse().JSON(res).Write(w)
}
