package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"balancio/internal/core"
	"balancio/internal/services"
)

const maxBodyBytes = 1 << 20

// requestError is a client mistake detected before any service runs.
type requestError struct {
	status  int
	msg     string
	details []string
}

func (e *requestError) Error() string {
	if len(e.details) == 0 {
		return e.msg
	}
	return e.msg + ": " + strings.Join(e.details, "; ")
}

func badRequest(msg string, details ...string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg, details: details}
}

func invalid(msg string, details ...string) error {
	return &requestError{status: http.StatusUnprocessableEntity, msg: msg, details: details}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so details match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads one JSON object into dst and validates it. Oversized
// bodies, unknown fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return badRequest("malformed JSON body", describeDecodeError(err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("request body must contain a single JSON object")
	}
	return validateStruct(dst)
}

func describeDecodeError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return "body is empty"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "syntax error: unexpected end of JSON"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("syntax error at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &maxErr):
		return fmt.Sprintf("body exceeds %d bytes", maxErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return strings.TrimPrefix(err.Error(), "json: ")
	default:
		return err.Error()
	}
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest("invalid request", err.Error())
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describeFieldError(fe))
	}
	return invalid("validation failed", details...)
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), rootNamespace(fe))
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "datetime":
		return field + " must be a YYYY-MM-DD date"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func rootNamespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i+1]
	}
	return ""
}

// Auth

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

func (r registerRequest) toRegistration() services.Registration {
	return services.Registration{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: sanitizeInput(r.FirstName),
		LastName:  sanitizeInput(r.LastName),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      services.UserView `json:"user"`
}

func newAuthResponse(res services.AuthResult) authResponse {
	return authResponse{Token: res.Token, ExpiresAt: res.Session.ExpiresAt, User: services.NewUserView(res.User)}
}

// Transactions

type transactionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" validate:"required,oneof=income expense"`
	CategoryID  string          `json:"categoryId" validate:"max=64"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
}

func (r transactionRequest) toTransaction() (core.Transaction, error) {
	amount, err := core.MoneyFromDecimal(r.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if amount.Cents == 0 {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Amount:      amount,
		Kind:        core.Kind(r.Type),
		CategoryID:  strings.TrimSpace(r.CategoryID),
		Title:       sanitizeInput(r.Title),
		Description: sanitizeInput(r.Description),
		Date:        date,
	}, nil
}

// Categories

type categoryRequest struct {
	Name  string `json:"name" validate:"required,max=60"`
	Type  string `json:"type" validate:"required,oneof=income expense"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Icon  string `json:"icon" validate:"max=32"`
}

func (r categoryRequest) toCategory() core.Category {
	return core.Category{
		Name:  sanitizeInput(r.Name),
		Kind:  core.Kind(r.Type),
		Color: strings.ToLower(r.Color),
		Icon:  sanitizeInput(r.Icon),
	}
}

// categoryUpdateRequest omits the type: a category never changes kind.
type categoryUpdateRequest struct {
	Name  string `json:"name" validate:"required,max=60"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Icon  string `json:"icon" validate:"max=32"`
}

func (r categoryUpdateRequest) toCategory() core.Category {
	return core.Category{Name: sanitizeInput(r.Name), Color: strings.ToLower(r.Color), Icon: sanitizeInput(r.Icon)}
}

// Budget

type budgetRequest struct {
	Limit             decimal.Decimal `json:"limit"`
	Currency          string          `json:"currency" validate:"omitempty,len=3,alpha"`
	WarningThreshold  float64         `json:"warningThreshold" validate:"gte=0,lte=100"`
	CriticalThreshold float64         `json:"criticalThreshold" validate:"gte=0,lte=100"`
}

func (r budgetRequest) toBudget() (core.MonthlyBudget, error) {
	if r.Limit.IsNegative() {
		return core.MonthlyBudget{}, core.ErrNegativeLimit
	}
	limit, err := core.MoneyFromDecimal(r.Limit)
	if err != nil {
		return core.MonthlyBudget{}, err
	}
	return core.MonthlyBudget{
		Limit:             limit,
		Currency:          strings.ToUpper(r.Currency),
		WarningThreshold:  r.WarningThreshold,
		CriticalThreshold: r.CriticalThreshold,
	}, nil
}

type budgetResponse struct {
	Limit             float64   `json:"limit"`
	Currency          string    `json:"currency"`
	WarningThreshold  float64   `json:"warningThreshold"`
	CriticalThreshold float64   `json:"criticalThreshold"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func newBudgetResponse(b core.MonthlyBudget) budgetResponse {
	return budgetResponse{
		Limit:             b.Limit.Float(),
		Currency:          b.Currency,
		WarningThreshold:  b.WarningThreshold,
		CriticalThreshold: b.CriticalThreshold,
		UpdatedAt:         b.UpdatedAt,
	}
}

// Profile

type settingsRequest struct {
	EmailNotifications *bool   `json:"emailNotifications"`
	BudgetAlerts       *bool   `json:"budgetAlerts"`
	MonthlyReports     *bool   `json:"monthlyReports"`
	ReportFormat       *string `json:"reportFormat" validate:"omitempty,oneof=csv json excel"`
	TwoFactorEnabled   *bool   `json:"twoFactorEnabled"`
}

type profileRequest struct {
	FirstName      *string          `json:"firstName" validate:"omitempty,max=100"`
	LastName       *string          `json:"lastName" validate:"omitempty,max=100"`
	Avatar         *string          `json:"avatar" validate:"omitempty,max=500"`
	Timezone       *string          `json:"timezone" validate:"omitempty,timezone"`
	TelegramChatID *int64           `json:"telegramChatId"`
	Settings       *settingsRequest `json:"settings"`
}

func (r profileRequest) toUpdate() services.ProfileUpdate {
	u := services.ProfileUpdate{
		FirstName:      sanitizePtr(r.FirstName),
		LastName:       sanitizePtr(r.LastName),
		Avatar:         sanitizePtr(r.Avatar),
		Timezone:       r.Timezone,
		TelegramChatID: r.TelegramChatID,
	}
	if s := r.Settings; s != nil {
		u.Settings = &services.SettingsUpdate{
			EmailNotifications: s.EmailNotifications,
			BudgetAlerts:       s.BudgetAlerts,
			MonthlyReports:     s.MonthlyReports,
			TwoFactorEnabled:   s.TwoFactorEnabled,
		}
		if s.ReportFormat != nil {
			f := core.ReportFormat(*s.ReportFormat)
			u.Settings.ReportFormat = &f
		}
	}
	return u
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
