// internal/app/aggregator.go
package app

import (
	"context"
	"strings"
	"time"

	"payment_reminder/internal/domain/billing"
	"payment_reminder/internal/domain/calendar"

	"github.com/sirupsen/logrus"
)

// MatchStrategy decides which events count toward an entity. The weekly and
// monthly no-show rules differ on purpose and must stay separate.
type MatchStrategy int

const (
	// MatchExactName counts an event whose name equals a known name.
	MatchExactName MatchStrategy = iota + 1
	// MatchNoShowContains counts an event whose name contains the no-show
	// marker and contains at least one known name as a substring.
	MatchNoShowContains
)

func (s MatchStrategy) String() string {
	switch s {
	case MatchExactName:
		return "exact_name"
	case MatchNoShowContains:
		return "no_show_contains"
	default:
		return "unknown"
	}
}

// Matcher applies a strategy against a fixed set of known names.
type Matcher struct {
	Strategy MatchStrategy
	Names    []string
	Marker   string // only used by MatchNoShowContains
}

// Matches reports whether an event name counts under this matcher.
func (m Matcher) Matches(eventName string) bool {
	switch m.Strategy {
	case MatchExactName:
		for _, n := range m.Names {
			if eventName == n {
				return true
			}
		}
		return false
	case MatchNoShowContains:
		if m.Marker == "" || !strings.Contains(eventName, m.Marker) {
			return false
		}
		for _, n := range m.Names {
			if n != "" && strings.Contains(eventName, n) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// EventMinutes is the whole number of minutes between start and end, truncated.
// Incomplete or inverted events yield ok=false.
func EventMinutes(ev calendar.Event) (int, bool) {
	if !ev.Complete() || ev.End.Before(ev.Start) {
		return 0, false
	}
	return int(ev.End.Sub(ev.Start) / time.Minute), true
}

// CalendarTotal is the monthly aggregate for one calendar.
type CalendarTotal struct {
	Calendar calendar.Calendar
	billing.Aggregate
}

// Aggregator sums event durations from a calendar source. Failing calendars
// contribute nothing; the number of swallowed failures is returned so callers
// can surface it.
type Aggregator struct {
	source calendar.Source
	logger *logrus.Entry
}

func NewAggregator(source calendar.Source, logger *logrus.Entry) *Aggregator {
	return &Aggregator{source: source, logger: logger.WithField("component", "aggregator")}
}

// ByEventName sums minutes per exact event name across every calendar.
func (a *Aggregator) ByEventName(ctx context.Context, period billing.Period, m Matcher) (map[string]int, int) {
	totals := make(map[string]int)
	suppressed := 0

	calendars, err := a.source.Calendars(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Could not list calendars; aggregating nothing")
		return totals, 1
	}

	for _, cal := range calendars {
		events, err := a.events(ctx, cal, period)
		if err != nil {
			suppressed++
			continue
		}
		for _, ev := range events {
			if !m.Matches(ev.Name) {
				continue
			}
			if minutes, ok := EventMinutes(ev); ok {
				totals[ev.Name] += minutes
			}
		}
	}
	return totals, suppressed
}

// ByCalendar sums session and no-show minutes per calendar.
func (a *Aggregator) ByCalendar(ctx context.Context, period billing.Period, sessions, noShows Matcher) ([]CalendarTotal, int) {
	suppressed := 0

	calendars, err := a.source.Calendars(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Could not list calendars; aggregating nothing")
		return nil, 1
	}

	out := make([]CalendarTotal, 0, len(calendars))
	for _, cal := range calendars {
		total := CalendarTotal{Calendar: cal, Aggregate: billing.Aggregate{Name: cal.Name}}
		events, err := a.events(ctx, cal, period)
		if err != nil {
			suppressed++
			out = append(out, total)
			continue
		}
		for _, ev := range events {
			minutes, ok := EventMinutes(ev)
			if !ok {
				continue
			}
			// An event lands in one bucket only; an exact session match wins.
			switch {
			case sessions.Matches(ev.Name):
				total.Minutes += minutes
			case noShows.Matches(ev.Name):
				total.NoShowMinutes += minutes
			}
		}
		out = append(out, total)
	}
	return out, suppressed
}

// events fetches one calendar's events and drops anything outside the window.
func (a *Aggregator) events(ctx context.Context, cal calendar.Calendar, period billing.Period) ([]calendar.Event, error) {
	from, to := period.Window()
	events, err := a.source.Events(ctx, cal.ID, from, to)
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"calendar_id":   cal.ID,
			"calendar_name": cal.Name,
		}).Warn("Calendar events fetch failed; calendar contributes zero")
		return nil, err
	}

	inWindow := make([]calendar.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Complete() {
			continue
		}
		if ev.End.After(from) && !ev.Start.After(to) {
			inWindow = append(inWindow, ev)
		}
	}
	return inWindow, nil
}
