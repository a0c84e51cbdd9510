package services

import (
	"time"

	"balancio/internal/budget"
	"balancio/internal/core"
)

// JSON views shared by the HTTP API, the websocket push and the JSON export.
// Money is rendered in major units.

type TransactionView struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Type        core.Kind `json:"type"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Category    string    `json:"category,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Date        string    `json:"date"`
	ExternalID  string    `json:"externalId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewTransactionView(t core.Transaction, categories map[string]core.Category) TransactionView {
	v := TransactionView{
		ID:          t.ID,
		Amount:      t.Amount.Float(),
		Type:        t.Kind,
		CategoryID:  t.CategoryID,
		Title:       t.Title,
		Description: t.Description,
		Date:        t.Date.String(),
		ExternalID:  t.ExternalID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if c, ok := categories[t.CategoryID]; ok {
		v.Category = c.Name
	}
	return v
}

func NewTransactionViews(txs []core.Transaction, categories []core.Category) []TransactionView {
	byID := budget.CategoryNames(categories)
	out := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, NewTransactionView(t, byID))
	}
	return out
}

type CategoryView struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Type  core.Kind `json:"type"`
	Color string    `json:"color"`
	Icon  string    `json:"icon"`
}

func NewCategoryView(c core.Category) CategoryView {
	return CategoryView{ID: c.ID, Name: c.Name, Type: c.Kind, Color: c.Color, Icon: c.Icon}
}

type ThresholdsView struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

type OverviewView struct {
	Budget          float64        `json:"budget"`
	Spent           float64        `json:"spent"`
	Remaining       float64        `json:"remaining"`
	PercentageUsed  float64        `json:"percentageUsed"`
	Status          budget.Status  `json:"status"`
	ShouldSendAlert bool           `json:"shouldSendAlert"`
	Currency        string         `json:"currency,omitempty"`
	Thresholds      ThresholdsView `json:"thresholds"`
}

func NewOverviewView(ov budget.Overview) OverviewView {
	return OverviewView{
		Budget:          ov.Budget.Float(),
		Spent:           ov.Spent.Float(),
		Remaining:       ov.Remaining.Float(),
		PercentageUsed:  ov.PercentageUsed,
		Status:          ov.Status,
		ShouldSendAlert: ov.ShouldSendAlert,
		Currency:        ov.Currency,
		Thresholds:      ThresholdsView{Warning: ov.Thresholds.Warning, Critical: ov.Thresholds.Critical},
	}
}

type TotalsView struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

func newTotalsView(t budget.Totals) TotalsView {
	return TotalsView{Income: t.Income.Float(), Expenses: t.Expenses.Float(), Balance: t.Balance.Float()}
}

type CategoryTotalView struct {
	CategoryID string  `json:"categoryId,omitempty"`
	Name       string  `json:"name"`
	Color      string  `json:"color,omitempty"`
	Amount     float64 `json:"amount"`
}

func newCategoryTotalViews(in []budget.CategoryTotal) []CategoryTotalView {
	out := make([]CategoryTotalView, 0, len(in))
	for _, c := range in {
		out = append(out, CategoryTotalView{CategoryID: c.CategoryID, Name: c.Name, Color: c.Color, Amount: c.Amount.Float()})
	}
	return out
}

type MonthView struct {
	Label    string  `json:"label"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

// DashboardView is the JSON rendering of a computed dashboard.
type DashboardView struct {
	Totals            TotalsView          `json:"totals"`
	CurrentMonth      TotalsView          `json:"currentMonth"`
	Categories        []CategoryTotalView `json:"categories"`
	CurrentMonthByCat []CategoryTotalView `json:"currentMonthCategories"`
	TopCategories     []CategoryTotalView `json:"topCategories"`
	Monthly           []MonthView         `json:"monthly"`
	Recent            []TransactionView   `json:"recentTransactions"`
	Overview          OverviewView        `json:"budgetOverview"`
	GeneratedAt       time.Time           `json:"generatedAt"`
}

func NewDashboardView(d budget.Dashboard, categories []core.Category) DashboardView {
	monthly := make([]MonthView, 0, len(d.Monthly))
	for _, m := range d.Monthly {
		monthly = append(monthly, MonthView{Label: m.Label, Income: m.Income.Float(), Expenses: m.Expenses.Float()})
	}
	return DashboardView{
		Totals:            newTotalsView(d.Totals),
		CurrentMonth:      newTotalsView(d.CurrentMonth),
		Categories:        newCategoryTotalViews(d.Categories),
		CurrentMonthByCat: newCategoryTotalViews(d.CurrentMonthByCat),
		TopCategories:     newCategoryTotalViews(d.TopCategories),
		Monthly:           monthly,
		Recent:            NewTransactionViews(d.Recent, categories),
		Overview:          NewOverviewView(d.Overview),
		GeneratedAt:       d.GeneratedAt,
	}
}

type SettingsView struct {
	EmailNotifications bool              `json:"emailNotifications"`
	BudgetAlerts       bool              `json:"budgetAlerts"`
	MonthlyReports     bool              `json:"monthlyReports"`
	ReportFormat       core.ReportFormat `json:"reportFormat"`
	TwoFactorEnabled   bool              `json:"twoFactorEnabled"`
}

type UserView struct {
	ID             string       `json:"id"`
	Email          string       `json:"email"`
	FirstName      string       `json:"firstName"`
	LastName       string       `json:"lastName"`
	Avatar         string       `json:"avatar,omitempty"`
	Timezone       string       `json:"timezone"`
	OAuthProvider  string       `json:"oauthProvider,omitempty"`
	TelegramChatID int64        `json:"telegramChatId,omitempty"`
	Settings       SettingsView `json:"settings"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func NewUserView(u core.User) UserView {
	s := u.Settings
	return UserView{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Avatar:         u.Avatar,
		Timezone:       u.Timezone,
		OAuthProvider:  u.OAuthProvider,
		TelegramChatID: u.TelegramChatID,
		Settings: SettingsView{
			EmailNotifications: s.EmailNotifications,
			BudgetAlerts:       s.BudgetAlerts,
			MonthlyReports:     s.MonthlyReports,
			ReportFormat:       s.ReportFormat,
			TwoFactorEnabled:   s.TwoFactorEnabled,
		},
		CreatedAt: u.CreatedAt,
	}
}
