package core

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	ReportCSV   ReportFormat = "csv"
	ReportJSON  ReportFormat = "json"
	ReportExcel ReportFormat = "excel"
)

const (
	DefaultCurrency          = "EUR"
	DefaultWarningThreshold  = 80.0
	DefaultCriticalThreshold = 95.0
	DefaultCategoryColor     = "#6b7280"
	DefaultCategoryIcon      = "category"
	DefaultTimezone          = "UTC"

	maxTitleLen        = 200
	maxDescriptionLen  = 1000
	maxCategoryNameLen = 60
)

type (
	// Kind is the direction of a money movement.
	Kind string

	ReportFormat string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          string
		UserID      string
		Amount      Money
		Kind        Kind
		CategoryID  string // empty when not assigned
		Title       string
		Description string
		Date        Date
		ExternalID  string // bank FITID for imported rows
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		Kind      Kind
		Color     string
		Icon      string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// MonthlyBudget is the single expense ceiling a user can configure.
	MonthlyBudget struct {
		UserID            string
		Limit             Money
		Currency          string
		WarningThreshold  float64
		CriticalThreshold float64
		UpdatedAt         time.Time
	}

	Settings struct {
		EmailNotifications bool
		BudgetAlerts       bool
		MonthlyReports     bool
		ReportFormat       ReportFormat
		TwoFactorEnabled   bool
	}

	User struct {
		ID             string
		Email          string
		PasswordHash   string
		FirstName      string
		LastName       string
		Avatar         string
		Timezone       string
		OAuthProvider  string
		TelegramChatID int64
		Settings       Settings
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid kind: must be income or expense")
	ErrEmptyTitle          = errors.New("empty title")
	ErrTitleTooLong        = errors.New("title too long (max 200 characters)")
	ErrDescriptionTooLong  = errors.New("description too long (max 1000 characters)")
	ErrEmptyCategoryName   = errors.New("empty category name")
	ErrCategoryNameTooLong = errors.New("category name too long (max 60 characters)")
	ErrInvalidColor        = errors.New("invalid color: expected #rrggbb")
	ErrKindMismatch        = errors.New("category kind does not match transaction kind")
	ErrNegativeLimit       = errors.New("budget limit cannot be negative")
	ErrInvalidCurrency     = errors.New("invalid currency code")
	ErrInvalidThresholds   = errors.New("invalid thresholds: need 0 < warning < critical <= 100")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrInvalidTimezone     = errors.New("invalid timezone")
	ErrInvalidReportFormat = errors.New("invalid report format")
)

var validationErrors = []error{
	ErrInvalidDay, ErrInvalidMonth, ErrInvalidDate, ErrInvalidAmount, ErrInvalidKind,
	ErrEmptyTitle, ErrTitleTooLong, ErrDescriptionTooLong, ErrEmptyCategoryName,
	ErrCategoryNameTooLong, ErrInvalidColor, ErrKindMismatch, ErrNegativeLimit,
	ErrInvalidCurrency, ErrInvalidThresholds, ErrInvalidEmail, ErrInvalidTimezone,
	ErrInvalidReportFormat,
}

// IsValidationError reports whether err wraps one of the domain validation errors.
func IsValidationError(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

var (
	colorPattern    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (f ReportFormat) Valid() bool {
	switch f {
	case ReportCSV, ReportJSON, ReportExcel:
		return true
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// InMonth reports whether the date falls in the given calendar year and month.
func (d Date) InMonth(year, month int) bool {
	return !d.IsZero() && d.Year() == year && d.Month() == month
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if len([]rune(t.Title)) > maxTitleLen {
		return ErrTitleTooLong
	}
	if len([]rune(t.Description)) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// CheckCategoryKind rejects a transaction whose category is scoped to the other kind.
func CheckCategoryKind(t Transaction, c Category) error {
	if c.Kind != t.Kind {
		return ErrKindMismatch
	}
	return nil
}

// WithDefaults fills presentation fields left empty by the client.
func (c Category) WithDefaults() Category {
	if strings.TrimSpace(c.Color) == "" {
		c.Color = DefaultCategoryColor
	}
	if strings.TrimSpace(c.Icon) == "" {
		c.Icon = DefaultCategoryIcon
	}
	return c
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyCategoryName
	}
	if len([]rune(name)) > maxCategoryNameLen {
		return ErrCategoryNameTooLong
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	if c.Color != "" && !colorPattern.MatchString(c.Color) {
		return ErrInvalidColor
	}
	return nil
}

// WithDefaults applies the default currency and thresholds to unset fields.
func (b MonthlyBudget) WithDefaults() MonthlyBudget {
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	if b.WarningThreshold == 0 {
		b.WarningThreshold = DefaultWarningThreshold
	}
	if b.CriticalThreshold == 0 {
		b.CriticalThreshold = DefaultCriticalThreshold
	}
	return b
}

func (b MonthlyBudget) Validate() error {
	if b.Limit.Cents < 0 {
		return ErrNegativeLimit
	}
	if b.Limit.Cents > MaxCents {
		return ErrInvalidAmount
	}
	if !currencyPattern.MatchString(b.Currency) {
		return ErrInvalidCurrency
	}
	if b.WarningThreshold <= 0 || b.CriticalThreshold > 100 || b.WarningThreshold >= b.CriticalThreshold {
		return ErrInvalidThresholds
	}
	return nil
}

// DefaultSettings is what a freshly registered user starts with.
func DefaultSettings() Settings {
	return Settings{
		EmailNotifications: true,
		BudgetAlerts:       true,
		MonthlyReports:     true,
		ReportFormat:       ReportExcel,
	}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u User) Validate() error {
	addr, err := mail.ParseAddress(u.Email)
	if err != nil || addr.Address != u.Email {
		return ErrInvalidEmail
	}
	if u.Timezone != "" {
		if _, err := time.LoadLocation(u.Timezone); err != nil {
			return ErrInvalidTimezone
		}
	}
	if u.Settings.ReportFormat != "" && !u.Settings.ReportFormat.Valid() {
		return ErrInvalidReportFormat
	}
	return nil
}

// Location returns the user's timezone, falling back to UTC.
func (u User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SplitName splits a single display name into first and last name.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
