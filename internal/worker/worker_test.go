package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balancio/internal/amqp"
)

type fakeSource struct {
	msgs    []*amqp.BudgetAlertMessage
	mu      sync.Mutex
	results []error
}

func (s *fakeSource) ConsumeBudgetAlerts(ctx context.Context, handler func(context.Context, *amqp.BudgetAlertMessage) error) error {
	for _, m := range s.msgs {
		err := handler(ctx, m)
		s.mu.Lock()
		s.results = append(s.results, err)
		s.mu.Unlock()
	}
	<-ctx.Done()
	return ctx.Err()
}

func alert(user string) *amqp.BudgetAlertMessage {
	return &amqp.BudgetAlertMessage{UserID: user, Level: "warning", Day: "2025-03-10", PercentageUsed: 85}
}

func TestAlertWorker_Run(t *testing.T) {
	src := &fakeSource{msgs: []*amqp.BudgetAlertMessage{alert("u1"), alert("bad"), alert("u2")}}
	var seen []string
	w := NewAlertWorker(src, func(_ context.Context, m *amqp.BudgetAlertMessage) error {
		seen = append(seen, m.UserID)
		if m.UserID == "bad" {
			return errors.New("telegram down")
		}
		return nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, []string{"u1", "bad", "u2"}, seen)
	require.Len(t, src.results, 3)
	assert.NoError(t, src.results[0])
	assert.Error(t, src.results[1], "handler errors reach the source so it can requeue")

	handled, failed := w.Stats()
	assert.Equal(t, int64(2), handled)
	assert.Equal(t, int64(1), failed)
}

type brokenSource struct{}

func (brokenSource) ConsumeBudgetAlerts(context.Context, func(context.Context, *amqp.BudgetAlertMessage) error) error {
	return errors.New("access refused")
}

func TestAlertWorker_SourceError(t *testing.T) {
	w := NewAlertWorker(brokenSource{}, func(context.Context, *amqp.BudgetAlertMessage) error { return nil }, nil)
	assert.EqualError(t, w.Run(context.Background()), "access refused")

	w = NewAlertWorker(nil, nil, nil)
	assert.Error(t, w.Run(context.Background()))
}

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessDueReports(context.Context, time.Time) (int, error) {
	p.calls.Add(1)
	return 1, p.err
}

func TestReportWorker_RunsAtStartupAndOnTick(t *testing.T) {
	p := &countingProcessor{err: errors.New("store offline")}
	w := NewReportWorker(p, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond,
		"a failing pass must not stop the loop")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestReportWorker_RunOnce(t *testing.T) {
	p := &countingProcessor{}
	w := NewReportWorker(p, 0, nil)

	sent, err := w.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, time.Hour, w.interval)
}
