package budget

import "time"

// AlertRecord is the latest claimed alert of one level. Day is the alert
// key, the user's local day when the alert was evaluated; At is when the
// claim was recorded and may fall on a later day.
type AlertRecord struct {
	Day string
	At  time.Time
}

func (r AlertRecord) IsZero() bool {
	return r.Day == ""
}

// LastAlerts holds the most recent claimed alert per status level.
type LastAlerts map[Status]AlertRecord

// DayKey is the calendar day of t in its own location, as YYYY-MM-DD.
// It is the day component of the (user, level, day) alert key.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ShouldAlert allows one alert per level per calendar day. Only warning and
// critical levels alert. A different level on the same day is a different key.
// now must be in the user's timezone.
func ShouldAlert(level Status, last LastAlerts, now time.Time) bool {
	if !level.Alertable() {
		return false
	}
	rec, ok := last[level]
	if !ok || rec.IsZero() {
		return true
	}
	return rec.Day != DayKey(now)
}
