package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/services"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/things/1").
		JSON(map[string]string{"id": "1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if loc := w.Header().Get("Location"); loc != "/api/things/1" {
		t.Errorf("Location = %q", loc)
	}
	if w.Body.String() != "{\"id\":\"1\"}\n" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().Status(http.StatusNoContent).JSON(map[string]string{"ignored": "yes"}).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestResponseBuilder_RawBody(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().Header("Content-Type", "text/csv").Body([]byte("a,b\n")).Write(w)

	if w.Header().Get("Content-Type") != "text/csv" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != "a,b\n" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().JSON(map[string]any{"bad": make(chan int)}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d", w.Code)
	}
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("invalid query parameter", "limit must be a non-negative integer").Write(w)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d", w.Code)
	}
	var body APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid query parameter" || len(body.Details) != 1 {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(internalErrorBody(t), "details") {
		t.Error("internal error should carry no details")
	}
}

func internalErrorBody(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	InternalServerError().Write(w)
	return w.Body.String()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest("bad"), http.StatusBadRequest},
		{invalid("bad"), http.StatusUnprocessableEntity},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{fmt.Errorf("save: %w", core.ErrNegativeLimit), http.StatusUnprocessableEntity},
		{auth.ErrWeakPassword, http.StatusUnprocessableEntity},
		{ledger.ErrNotFound, http.StatusNotFound},
		{auth.ErrUnknownProvider, http.StatusNotFound},
		{auth.ErrUnknownFlow, http.StatusNotFound},
		{ledger.ErrConflict, http.StatusConflict},
		{services.ErrCategoryInUse, http.StatusConflict},
		{services.ErrEmailTaken, http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenRevoked, http.StatusUnauthorized},
		{auth.ErrFlowTimeout, http.StatusRequestTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorFrom_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorFrom(errors.New("pq: password authentication failed")).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	ErrorFrom(invalid("validation failed", "title is required")).Write(w)
	var body APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "validation failed" || len(body.Details) != 1 || body.Details[0] != "title is required" {
		t.Errorf("body = %+v", body)
	}
}
