package services

import (
	"fmt"
	"time"
)

// ReportSchedule decides when a periodic report is due and which closed
// period it covers. Times are expected in the user's timezone.
type ReportSchedule interface {
	// IsDue reports whether a report should be sent at now given the last
	// send time. A zero last means never sent.
	IsDue(last, now time.Time) bool
	// Period returns the last closed period before now as [start, end) and a
	// display label.
	Period(now time.Time) (start, end time.Time, label string)
}

// MonthlySchedule sends once per calendar month, covering the previous month.
type MonthlySchedule struct{}

func (MonthlySchedule) IsDue(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	last = last.In(now.Location())
	return last.Year() < now.Year() || (last.Year() == now.Year() && last.Month() < now.Month())
}

func (MonthlySchedule) Period(now time.Time) (time.Time, time.Time, string) {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, -1, 0)
	return start, end, start.Format("January 2006")
}

// WeeklySchedule sends once per ISO week, covering the previous Monday to
// Sunday.
type WeeklySchedule struct{}

func (WeeklySchedule) IsDue(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return last.Before(weekStart(now))
}

func (WeeklySchedule) Period(now time.Time) (time.Time, time.Time, string) {
	end := weekStart(now)
	start := end.AddDate(0, 0, -7)
	year, week := start.ISOWeek()
	return start, end, fmt.Sprintf("week %d of %d", week, year)
}

// weekStart returns midnight of the Monday on or before t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -offset)
}

var reportSchedules = map[string]ReportSchedule{
	"monthly": MonthlySchedule{},
	"weekly":  WeeklySchedule{},
}

// GetReportSchedule looks up a schedule by its configured name.
func GetReportSchedule(name string) (ReportSchedule, error) {
	s, ok := reportSchedules[name]
	if !ok {
		return nil, fmt.Errorf("unknown report schedule: %s", name)
	}
	return s, nil
}

// RegisterReportSchedule adds or replaces a named schedule.
func RegisterReportSchedule(name string, s ReportSchedule) {
	reportSchedules[name] = s
}
