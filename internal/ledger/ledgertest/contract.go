// Package ledgertest holds the behavioural contract every ledger.Store
// adapter must satisfy. Adapter packages call Run from their own tests.
package ledgertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balancio/internal/budget"
	"balancio/internal/core"
	"balancio/internal/ledger"
)

var stamp = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func User(id, email string) core.User {
	return core.User{
		ID:        id,
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Timezone:  "Europe/Rome",
		Settings:  core.DefaultSettings(),
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
}

func Category(id, userID, name string, kind core.Kind) core.Category {
	return core.Category{
		ID: id, UserID: userID, Name: name, Kind: kind,
		Color: core.DefaultCategoryColor, Icon: core.DefaultCategoryIcon,
		CreatedAt: stamp, UpdatedAt: stamp,
	}
}

func Transaction(id, userID string, kind core.Kind, cents int64, title string, date core.Date) core.Transaction {
	return core.Transaction{
		ID: id, UserID: userID, Kind: kind, Amount: core.Money{Cents: cents},
		Title: title, Date: date, CreatedAt: stamp, UpdatedAt: stamp,
	}
}

// Run exercises every port of the store returned by newStore. Each subtest
// gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("categories", func(t *testing.T) { testCategories(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("import", func(t *testing.T) { testImport(t, newStore(t)) })
	t.Run("budgets", func(t *testing.T) { testBudgets(t, newStore(t)) })
	t.Run("alerts", func(t *testing.T) { testAlerts(t, newStore(t)) })
	t.Run("reports", func(t *testing.T) { testReports(t, newStore(t)) })
}

func testUsers(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	u := User("u1", "ada@example.com")
	u.TelegramChatID = 42
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, User("u2", "ada@example.com")), ledger.ErrConflict)

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, int64(42), got.TelegramChatID)
	assert.Equal(t, core.ReportExcel, got.Settings.ReportFormat)
	assert.True(t, got.Settings.BudgetAlerts)
	assert.True(t, got.CreatedAt.Equal(stamp))

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got.FirstName = "Augusta"
	got.Settings.BudgetAlerts = false
	require.NoError(t, s.UpdateUser(ctx, got))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.FirstName)
	assert.False(t, got.Settings.BudgetAlerts)

	assert.ErrorIs(t, s.UpdateUser(ctx, User("ghost", "ghost@example.com")), ledger.ErrNotFound)

	require.NoError(t, s.CreateUser(ctx, User("u0", "bob@example.com")))
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ada@example.com", users[0].Email)
}

func testCategories(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User("u1", "a@example.com")))
	require.NoError(t, s.CreateUser(ctx, User("u2", "b@example.com")))

	require.NoError(t, s.CreateCategory(ctx, Category("c1", "u1", "Groceries", core.Expense)))
	require.NoError(t, s.CreateCategory(ctx, Category("c2", "u1", "Salary", core.Income)))
	require.NoError(t, s.CreateCategory(ctx, Category("c3", "u1", "Bills", core.Expense)))
	require.NoError(t, s.CreateCategory(ctx, Category("c4", "u2", "Groceries", core.Expense)))
	assert.ErrorIs(t, s.CreateCategory(ctx, Category("c5", "u1", "Groceries", core.Expense)), ledger.ErrConflict)

	all, err := s.ListCategories(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Bills", all[0].Name)

	expenses, err := s.ListCategories(ctx, "u1", core.Expense)
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	_, err = s.GetCategory(ctx, "u2", "c1")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "categories are scoped per user")

	c, err := s.GetCategory(ctx, "u1", "c1")
	require.NoError(t, err)
	c.Name = "Food"
	c.Color = "#112233"
	require.NoError(t, s.UpdateCategory(ctx, c))
	c, err = s.GetCategory(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Food", c.Name)
	assert.Equal(t, "#112233", c.Color)

	assert.ErrorIs(t, s.DeleteCategory(ctx, "u2", "c1"), ledger.ErrNotFound)
	require.NoError(t, s.DeleteCategory(ctx, "u1", "c1"))
	_, err = s.GetCategory(ctx, "u1", "c1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testTransactions(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User("u1", "a@example.com")))
	require.NoError(t, s.CreateUser(ctx, User("u2", "b@example.com")))
	require.NoError(t, s.CreateCategory(ctx, Category("food", "u1", "Food", core.Expense)))

	groceries := Transaction("t1", "u1", core.Expense, 4250, "Groceries", core.NewDate(2025, 3, 2))
	groceries.CategoryID = "food"
	groceries.Description = "weekly shop"
	rows := []core.Transaction{
		groceries,
		Transaction("t2", "u1", core.Income, 250000, "Salary", core.NewDate(2025, 3, 1)),
		Transaction("t3", "u1", core.Expense, 1200, "Cinema", core.NewDate(2025, 2, 20)),
		Transaction("t4", "u2", core.Expense, 999, "Other user", core.NewDate(2025, 3, 5)),
	}
	for _, r := range rows {
		require.NoError(t, s.CreateTransaction(ctx, r))
	}

	got, err := s.GetTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(4250), got.Amount.Cents)
	assert.Equal(t, "food", got.CategoryID)
	assert.Equal(t, "weekly shop", got.Description)
	assert.Equal(t, "2025-03-02", got.Date.String())

	_, err = s.GetTransaction(ctx, "u2", "t1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	list, err := s.ListTransactions(ctx, "u1", core.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(list))

	list, err = s.ListTransactions(ctx, "u1", core.TransactionFilter{Kind: core.Expense, SortBy: core.SortByAmount, SortOrder: core.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t1"}, ids(list))

	list, err = s.ListTransactions(ctx, "u1", core.TransactionFilter{Search: "sal"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(list))

	list, err = s.ListTransactions(ctx, "u1", core.TransactionFilter{
		From: core.NewDate(2025, 3, 1), To: core.NewDate(2025, 3, 2), CategoryID: "food",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids(list))

	list, err = s.ListTransactions(ctx, "u1", core.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(list))

	n, err := s.CountByCategory(ctx, "u1", "food")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got.Amount = core.Money{Cents: 5000}
	got.Title = "Groceries and more"
	require.NoError(t, s.UpdateTransaction(ctx, got))
	got, err = s.GetTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Amount.Cents)

	ghost := Transaction("nope", "u1", core.Expense, 1, "x", core.NewDate(2025, 1, 1))
	assert.ErrorIs(t, s.UpdateTransaction(ctx, ghost), ledger.ErrNotFound)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, "u2", "t1"), ledger.ErrNotFound)
	require.NoError(t, s.DeleteTransaction(ctx, "u1", "t1"))
	list, err = s.ListTransactions(ctx, "u1", core.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testImport(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User("u1", "a@example.com")))

	batch := func(ids ...string) []core.Transaction {
		out := make([]core.Transaction, 0, len(ids))
		for _, id := range ids {
			tx := Transaction("id-"+id, "", core.Expense, 100, "Card "+id, core.NewDate(2025, 3, 3))
			tx.ExternalID = "fit-" + id
			out = append(out, tx)
		}
		return out
	}

	n, err := s.ImportTransactions(ctx, "u1", batch("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	second := batch("b", "c")
	second[0].ID = "id-b2"
	n, err = s.ImportTransactions(ctx, "u1", second)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rows with a known external id are skipped")

	list, err := s.ListTransactions(ctx, "u1", core.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, tx := range list {
		assert.Equal(t, "u1", tx.UserID)
	}
}

func testBudgets(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User("u1", "a@example.com")))

	_, err := s.GetBudget(ctx, "u1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	b := core.MonthlyBudget{UserID: "u1", Limit: core.Money{Cents: 20000}, Currency: "EUR", WarningThreshold: 75, CriticalThreshold: 90, UpdatedAt: stamp}
	require.NoError(t, s.SaveBudget(ctx, b))
	b.Limit = core.Money{Cents: 30000}
	require.NoError(t, s.SaveBudget(ctx, b))

	got, err := s.GetBudget(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), got.Limit.Cents)
	assert.Equal(t, 75.0, got.WarningThreshold)
	assert.Equal(t, 90.0, got.CriticalThreshold)

	require.NoError(t, s.DeleteBudget(ctx, "u1"))
	assert.ErrorIs(t, s.DeleteBudget(ctx, "u1"), ledger.ErrNotFound)
}

func testAlerts(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User("u1", "a@example.com")))

	last, err := s.LastAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, last)

	ok, err := s.ClaimAlert(ctx, "u1", budget.Warning, "2025-03-01", stamp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimAlert(ctx, "u1", budget.Warning, "2025-03-01", stamp.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "same key claims once")

	ok, err = s.ClaimAlert(ctx, "u1", budget.Critical, "2025-03-01", stamp.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "a different level is a different key")

	ok, err = s.ClaimAlert(ctx, "u1", budget.Warning, "2025-03-02", stamp.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	last, err = s.LastAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", last[budget.Warning].Day)
	assert.True(t, last[budget.Warning].At.Equal(stamp.Add(24*time.Hour)))
	assert.Equal(t, "2025-03-01", last[budget.Critical].Day)
	assert.True(t, last[budget.Critical].At.Equal(stamp.Add(time.Hour)))

	require.NoError(t, s.ReleaseAlert(ctx, "u1", budget.Critical, "2025-03-01"))
	ok, err = s.ClaimAlert(ctx, "u1", budget.Critical, "2025-03-01", stamp)
	require.NoError(t, err)
	assert.True(t, ok, "released keys can be claimed again")

	// evaluated on the 14th, claimed just after midnight UTC
	lateClaim := time.Date(2025, 3, 15, 0, 0, 5, 0, time.UTC)
	ok, err = s.ClaimAlert(ctx, "u1", budget.Warning, "2025-03-14", lateClaim)
	require.NoError(t, err)
	require.True(t, ok)

	last, err = s.LastAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", last[budget.Warning].Day)
	assert.True(t, budget.ShouldAlert(budget.Warning, last, time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)),
		"a claim recorded after midnight still belongs to the previous day")
	assert.False(t, budget.ShouldAlert(budget.Warning, last, time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimAlert(ctx, "u1", budget.Warning, "2025-03-09", stamp)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load(), "concurrent claims must not double-send")
}

func testReports(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User("u1", "a@example.com")))

	at, err := s.LastReport(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	require.NoError(t, s.RecordReport(ctx, "u1", stamp))
	require.NoError(t, s.RecordReport(ctx, "u1", stamp.AddDate(0, 1, 0)))
	at, err = s.LastReport(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, at.Equal(stamp.AddDate(0, 1, 0)))
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
