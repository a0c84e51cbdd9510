package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"balancio/internal/budget"
)

// BudgetAlertMessage asks the alert worker to deliver one budget alert. The
// (UserID, Level, Day) triple is the delivery key.
type BudgetAlertMessage struct {
	UserID         string    `json:"userId"`
	Level          string    `json:"level"`
	PercentageUsed float64   `json:"percentageUsed"`
	SpentCents     int64     `json:"spentCents"`
	LimitCents     int64     `json:"limitCents"`
	Currency       string    `json:"currency"`
	Day            string    `json:"day"`
	Timestamp      time.Time `json:"timestamp"`
}

var errIncompleteMessage = errors.New("budget alert message requires userId, level and day")

// NewBudgetAlertMessage builds the message for an evaluated overview. now must
// be in the user's timezone so Day matches the throttle key.
func NewBudgetAlertMessage(userID string, ov budget.Overview, now time.Time) *BudgetAlertMessage {
	return &BudgetAlertMessage{
		UserID:         userID,
		Level:          string(ov.Status),
		PercentageUsed: ov.PercentageUsed,
		SpentCents:     ov.Spent.Cents,
		LimitCents:     ov.Budget.Cents,
		Currency:       ov.Currency,
		Day:            budget.DayKey(now),
		Timestamp:      now,
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertLevel returns the message level as a budget status.
func (m *BudgetAlertMessage) AlertLevel() budget.Status {
	return budget.Status(m.Level)
}

// BudgetAlertMessageFromJSON decodes and checks a message body.
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.Day == "" || !msg.AlertLevel().Alertable() {
		return nil, errIncompleteMessage
	}
	return &msg, nil
}
