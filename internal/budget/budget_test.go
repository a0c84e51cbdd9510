package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balancio/internal/core"
)

var now = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func tx(kind core.Kind, cents int64, category string, date core.Date) core.Transaction {
	return core.Transaction{Kind: kind, Amount: core.Money{Cents: cents}, CategoryID: category, Title: "t", Date: date}
}

func scenario() []core.Transaction {
	d := core.NewDate(2025, 3, 10)
	return []core.Transaction{
		tx(core.Expense, 10000, "catA", d),
		tx(core.Expense, 5000, "catB", d),
		tx(core.Income, 50000, "", d),
	}
}

func categories() []core.Category {
	return []core.Category{
		{ID: "catA", Name: "Food", Kind: core.Expense},
		{ID: "catB", Name: "Transport", Kind: core.Expense},
		{ID: "catC", Name: "Fun", Kind: core.Expense},
	}
}

func TestAggregate(t *testing.T) {
	totals := Aggregate(scenario())
	assert.Equal(t, int64(50000), totals.Income.Cents)
	assert.Equal(t, int64(15000), totals.Expenses.Cents)
	assert.Equal(t, int64(35000), totals.Balance.Cents)
}

func TestAggregate_LargestAmountsDoNotOverflow(t *testing.T) {
	d := core.NewDate(2025, 3, 10)
	var txs []core.Transaction
	for i := 0; i < 1000; i++ {
		txs = append(txs, tx(core.Expense, core.MaxCents, "catA", d))
	}
	txs = append(txs, tx(core.Income, core.MaxCents, "", d))

	totals := Aggregate(txs)
	assert.Equal(t, 1000*core.MaxCents, totals.Expenses.Cents)
	assert.Equal(t, core.MaxCents-1000*core.MaxCents, totals.Balance.Cents)
	assert.Negative(t, totals.Balance.Cents)
}

func TestAggregate_Empty(t *testing.T) {
	totals := Aggregate(nil)
	assert.Equal(t, Totals{}, totals)
	assert.Empty(t, Rollup(nil, nil))
	assert.Empty(t, TopCategories(nil, 3))
}

func TestAggregate_BalanceIdentity(t *testing.T) {
	sets := [][]core.Transaction{
		scenario(),
		{tx(core.Expense, 1, "", core.NewDate(2025, 1, 1))},
		{tx(core.Income, 999, "", core.NewDate(2024, 12, 31)), tx(core.Expense, 1000, "", core.NewDate(2025, 1, 1))},
	}
	for _, set := range sets {
		totals := Aggregate(set)
		require.Equal(t, totals.Income.Cents-totals.Expenses.Cents, totals.Balance.Cents)
	}
}

func TestAggregate_MalformedRecordsCountAsZero(t *testing.T) {
	d := core.NewDate(2025, 3, 1)
	txs := append(scenario(),
		tx(core.Expense, 0, "catA", d),
		tx(core.Expense, -300, "catA", d),
		tx("transfer", 7000, "", d),
	)
	totals := Aggregate(txs)
	assert.Equal(t, int64(15000), totals.Expenses.Cents)
	assert.Equal(t, int64(50000), totals.Income.Cents)
}

func TestCurrentMonthExpenses_ExcludesOtherMonths(t *testing.T) {
	txs := append(scenario(),
		tx(core.Expense, 99900, "catA", core.NewDate(2025, 2, 28)),
		tx(core.Expense, 11100, "catA", core.NewDate(2024, 3, 10)),
	)
	assert.Equal(t, int64(15000), CurrentMonthExpenses(txs, now).Cents)
}

func TestRollup_OrderAndUnknown(t *testing.T) {
	d := core.NewDate(2025, 3, 1)
	txs := []core.Transaction{
		tx(core.Expense, 500, "catB", d),
		tx(core.Expense, 200, "missing", d),
		tx(core.Expense, 300, "catA", d),
		tx(core.Income, 9999, "catA", d),
		tx(core.Expense, 100, "", d),
		tx(core.Expense, 50, "catB", d),
	}
	rollup := Rollup(txs, categories())
	require.Len(t, rollup, 3)
	assert.Equal(t, "Transport", rollup[0].Name)
	assert.Equal(t, int64(550), rollup[0].Amount.Cents)
	assert.Equal(t, UnknownCategory, rollup[1].Name)
	assert.Equal(t, int64(300), rollup[1].Amount.Cents)
	assert.Equal(t, "Food", rollup[2].Name)
}

func TestRollup_SumEqualsTotalExpenses(t *testing.T) {
	txs := append(scenario(), tx(core.Expense, 1234, "nope", core.NewDate(2025, 1, 2)))
	var sum int64
	for _, c := range Rollup(txs, categories()) {
		sum += c.Amount.Cents
	}
	assert.Equal(t, Aggregate(txs).Expenses.Cents, sum)
}

func TestTopCategories_StableTies(t *testing.T) {
	rollup := []CategoryTotal{
		{Name: "A", Amount: core.Money{Cents: 100}},
		{Name: "B", Amount: core.Money{Cents: 300}},
		{Name: "C", Amount: core.Money{Cents: 100}},
		{Name: "D", Amount: core.Money{Cents: 300}},
		{Name: "E", Amount: core.Money{Cents: 50}},
	}
	top := TopCategories(rollup, 0)
	require.Len(t, top, DefaultTopN)
	assert.Equal(t, []string{"B", "D", "A"}, names(top))
	assert.Equal(t, "A", rollup[0].Name, "input must not be reordered")

	assert.Equal(t, []string{"B", "D", "A", "C", "E"}, names(TopCategories(rollup, 10)))
}

func names(in []CategoryTotal) []string {
	out := make([]string, len(in))
	for i, c := range in {
		out[i] = c.Name
	}
	return out
}

func TestMonthlySeries(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, 1000, "", core.NewDate(2025, 3, 1)),
		tx(core.Expense, 400, "", core.NewDate(2025, 1, 20)),
		tx(core.Expense, 100, "", core.NewDate(2024, 10, 5)),
		tx(core.Expense, 777, "", core.NewDate(2024, 9, 30)), // outside the window
	}
	series := MonthlySeries(txs, now, 0)
	require.Len(t, series, DefaultSeriesMonths)
	assert.Equal(t, "Oct 2024", series[0].Label)
	assert.Equal(t, int64(100), series[0].Expenses.Cents)
	assert.Equal(t, int64(400), series[3].Expenses.Cents)
	assert.Equal(t, int64(1000), series[5].Income.Cents)
	assert.Equal(t, 3, series[5].Month)
}

func TestPercentageUsed(t *testing.T) {
	assert.Equal(t, 75.0, PercentageUsed(core.Money{Cents: 15000}, core.Money{Cents: 20000}))
	assert.Equal(t, 150.0, PercentageUsed(core.Money{Cents: 15000}, core.Money{Cents: 10000}))
	assert.Equal(t, 33.33, PercentageUsed(core.Money{Cents: 1}, core.Money{Cents: 3}))
	assert.Equal(t, 0.0, PercentageUsed(core.Money{Cents: 15000}, core.Money{}))
	assert.Equal(t, 0.0, PercentageUsed(core.Money{Cents: 15000}, core.Money{Cents: -100}))
}

func TestClassify_Monotonic(t *testing.T) {
	th := DefaultThresholds()
	prev := Safe
	for pct := 0.0; pct <= 200; pct += 0.5 {
		s := Classify(pct, th)
		require.GreaterOrEqual(t, s.Severity(), prev.Severity(), "pct=%v", pct)
		prev = s
	}
	assert.Equal(t, Safe, Classify(79.99, th))
	assert.Equal(t, Warning, Classify(80, th))
	assert.Equal(t, Warning, Classify(94.99, th))
	assert.Equal(t, Critical, Classify(95, th))
}

func TestEvaluate_Scenarios(t *testing.T) {
	spent := CurrentMonthExpenses(scenario(), now)

	t.Run("safe under warning", func(t *testing.T) {
		ov := Evaluate(&core.MonthlyBudget{Limit: core.Money{Cents: 20000}}, spent, nil, now)
		assert.True(t, ov.HasBudget)
		assert.Equal(t, int64(15000), ov.Spent.Cents)
		assert.Equal(t, int64(5000), ov.Remaining.Cents)
		assert.Equal(t, 75.0, ov.PercentageUsed)
		assert.Equal(t, Safe, ov.Status)
		assert.False(t, ov.ShouldSendAlert)
		assert.Equal(t, "EUR", ov.Currency)
	})

	t.Run("critical over limit", func(t *testing.T) {
		ov := Evaluate(&core.MonthlyBudget{Limit: core.Money{Cents: 10000}}, spent, nil, now)
		assert.Equal(t, 150.0, ov.PercentageUsed)
		assert.Equal(t, Critical, ov.Status)
		assert.Equal(t, int64(-5000), ov.Remaining.Cents)
		assert.True(t, ov.ShouldSendAlert)
	})

	t.Run("no budget", func(t *testing.T) {
		ov := Evaluate(nil, spent, nil, now)
		assert.False(t, ov.HasBudget)
		assert.Equal(t, NoBudget, ov.Status)
		assert.False(t, ov.ShouldSendAlert)
	})

	t.Run("zero limit is zero percent", func(t *testing.T) {
		ov := Evaluate(&core.MonthlyBudget{}, spent, nil, now)
		assert.Equal(t, 0.0, ov.PercentageUsed)
		assert.Equal(t, Safe, ov.Status)
		assert.Equal(t, int64(-15000), ov.Remaining.Cents)
	})

	t.Run("custom thresholds", func(t *testing.T) {
		b := &core.MonthlyBudget{Limit: core.Money{Cents: 20000}, WarningThreshold: 70, CriticalThreshold: 90}
		ov := Evaluate(b, spent, nil, now)
		assert.Equal(t, Warning, ov.Status)
		assert.Equal(t, Thresholds{Warning: 70, Critical: 90}, ov.Thresholds)
	})
}

func TestShouldAlert_Throttle(t *testing.T) {
	last := LastAlerts{}
	assert.True(t, ShouldAlert(Warning, last, now))

	last[Warning] = AlertRecord{Day: DayKey(now), At: now.Add(-time.Hour)}
	assert.False(t, ShouldAlert(Warning, last, now), "same level same day")
	assert.True(t, ShouldAlert(Critical, last, now), "new level same day")

	tomorrow := now.Add(24 * time.Hour)
	assert.True(t, ShouldAlert(Warning, last, tomorrow), "new day resets")
	last[Warning] = AlertRecord{Day: DayKey(tomorrow), At: tomorrow}
	assert.False(t, ShouldAlert(Warning, last, tomorrow.Add(time.Minute)))

	assert.False(t, ShouldAlert(Safe, nil, now))
	assert.False(t, ShouldAlert(NoBudget, nil, now))
}

func TestShouldAlert_KeyedByAlertDayNotClaimTime(t *testing.T) {
	// evaluated late on the 14th, claimed a few seconds after midnight
	last := LastAlerts{Warning: {Day: "2025-03-14", At: time.Date(2025, 3, 15, 0, 0, 5, 0, time.UTC)}}

	assert.True(t, ShouldAlert(Warning, last, time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)),
		"first warning of the 15th must still fire")
	assert.False(t, ShouldAlert(Warning, last, time.Date(2025, 3, 14, 23, 59, 30, 0, time.UTC)))
}

func TestShouldAlert_UsesCallerTimezone(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	// 23:30 UTC on the 14th is already the 15th in Rome.
	instant := time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC)
	last := LastAlerts{Warning: {Day: DayKey(instant.In(rome)), At: instant}}

	assert.Equal(t, "2025-03-15", last[Warning].Day)
	assert.False(t, ShouldAlert(Warning, last, instant.In(rome).Add(8*time.Hour)))
	// The same instant is still the 14th in UTC.
	assert.True(t, ShouldAlert(Warning, last, instant))
}

func TestCalculator_Compute(t *testing.T) {
	calc := Calculator{Now: func() time.Time { return now }}
	txs := append(scenario(), tx(core.Expense, 2500, "catC", core.NewDate(2025, 2, 3)))
	in := Input{
		Transactions: txs,
		Categories:   categories(),
		Budget:       &core.MonthlyBudget{Limit: core.Money{Cents: 18000}},
		LastAlerts:   LastAlerts{},
	}

	d := calc.Compute(in)
	assert.Equal(t, int64(17500), d.Totals.Expenses.Cents)
	assert.Equal(t, int64(15000), d.CurrentMonth.Expenses.Cents)
	assert.Equal(t, []string{"Food", "Transport", "Fun"}, names(d.Categories))
	assert.Equal(t, []string{"Food", "Transport"}, names(d.CurrentMonthByCat))
	assert.Equal(t, []string{"Food", "Transport", "Fun"}, names(d.TopCategories))
	assert.Len(t, d.Monthly, DefaultSeriesMonths)
	assert.Len(t, d.Recent, 4)
	assert.Equal(t, Warning, d.Overview.Status)
	assert.Equal(t, 83.33, d.Overview.PercentageUsed)
	assert.True(t, d.Overview.ShouldSendAlert)

	again := calc.Compute(in)
	assert.Equal(t, d, again, "compute must be idempotent")
	assert.Equal(t, d.Overview, calc.Overview(in))
}
