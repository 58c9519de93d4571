package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/DoseLine/internal/models"
)

// How far NextOccurrence scans before giving up. Interval schedules can have
// long gaps, but anything beyond a year has no next occurrence worth showing.
const maxScanDays = 400

var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// StartOfDay returns midnight of t's calendar day in t's location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayRule compiles the schedule's repetition into an RRULE anchored at
// midnight of the start date. Time-of-day fan-out stays outside the rule;
// the rule only answers "does this calendar day match".
func dayRule(s *models.Schedule) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Dtstart: StartOfDay(s.StartDate),
	}

	switch s.Kind {
	case models.KindDaily:
		opt.Freq = rrule.DAILY
	case models.KindSpecificWeekdays:
		opt.Freq = rrule.WEEKLY
		for _, wd := range s.Weekdays {
			if wd < 0 || wd > 6 {
				return nil, fmt.Errorf("weekday index out of range: %d", wd)
			}
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	case models.KindIntervalDays:
		opt.Freq = rrule.DAILY
		opt.Interval = s.IntervalDays
	default:
		return nil, fmt.Errorf("schedule kind %q has no recurrence rule", s.Kind)
	}

	return rrule.NewRRule(opt)
}

// OccursOn reports whether the schedule has any dose on the given calendar day.
// As-needed schedules never occur; they are logged ad hoc by the user.
func OccursOn(s *models.Schedule, date time.Time) bool {
	if !s.Active || s.Kind == models.KindAsNeeded {
		return false
	}

	day := StartOfDay(date)
	if day.Before(StartOfDay(s.StartDate)) {
		return false
	}
	if s.EndDate != nil && day.After(StartOfDay(*s.EndDate)) {
		return false
	}

	rule, err := dayRule(s)
	if err != nil {
		return false
	}

	// Rule instances land on midnight, so a hit inside the day window means
	// the day matches.
	hits := rule.Between(day, day.Add(24*time.Hour-time.Second), true)
	return len(hits) > 0
}

// OccurrencesOn returns the absolute dose times for the schedule on the given
// calendar day, sorted ascending. Empty when the day does not match the rule.
func OccurrencesOn(s *models.Schedule, date time.Time) []time.Time {
	if !OccursOn(s, date) {
		return nil
	}

	var occs []time.Time
	for _, tod := range s.Times {
		parsed, err := time.Parse("15:04", tod)
		if err != nil {
			continue
		}
		occs = append(occs, time.Date(
			date.Year(), date.Month(), date.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0,
			date.Location(),
		))
	}

	sort.Slice(occs, func(i, j int) bool { return occs[i].Before(occs[j]) })
	return occs
}

// NextOccurrence returns the schedule's first dose time strictly after the
// given instant, or nil when no future occurrence exists within the scan
// horizon (inactive, as-needed, or past the end date).
func NextOccurrence(s *models.Schedule, after time.Time) *time.Time {
	if !s.Active || s.Kind == models.KindAsNeeded {
		return nil
	}

	day := StartOfDay(after)
	if start := StartOfDay(s.StartDate); day.Before(start) {
		day = start
	}

	for i := 0; i < maxScanDays; i++ {
		if s.EndDate != nil && day.After(StartOfDay(*s.EndDate)) {
			return nil
		}
		for _, occ := range OccurrencesOn(s, day) {
			if occ.After(after) {
				return &occ
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return nil
}

// HumanSummary returns a Chinese description of the schedule for list views
func HumanSummary(s *models.Schedule) string {
	var b strings.Builder

	switch s.Kind {
	case models.KindDaily:
		b.WriteString("每天")
	case models.KindSpecificWeekdays:
		names := [7]string{"日", "一", "二", "三", "四", "五", "六"}
		var days []string
		for _, wd := range s.Weekdays {
			if wd >= 0 && wd <= 6 {
				days = append(days, "週"+names[wd])
			}
		}
		b.WriteString(strings.Join(days, "、"))
	case models.KindIntervalDays:
		if s.IntervalDays == 1 {
			b.WriteString("每天")
		} else {
			b.WriteString(fmt.Sprintf("每 %d 天", s.IntervalDays))
		}
	case models.KindAsNeeded:
		return "需要時服用"
	}

	if len(s.Times) > 0 {
		b.WriteString(" " + strings.Join(s.Times, "、"))
	}
	if s.EndDate != nil {
		b.WriteString(fmt.Sprintf("，直到 %s", s.EndDate.Format("2006-01-02")))
	}
	if !s.Active {
		b.WriteString("（已停用）")
	}
	return b.String()
}
