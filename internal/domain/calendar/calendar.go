// internal/domain/calendar/calendar.go
package calendar

import (
	"context"
	"time"
)

// Calendar identifies one enumerable event source.
type Calendar struct {
	ID   string
	Name string
}

// Event is a single occurrence as reported by a source. Fields the source
// could not provide are left at their zero value.
type Event struct {
	Name   string
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Complete reports whether name, start and end are all present.
func (e Event) Complete() bool {
	return e.Name != "" && !e.Start.IsZero() && !e.End.IsZero()
}

// Source is a read-only calendar provider.
type Source interface {
	Calendars(ctx context.Context) ([]Calendar, error)
	// Events returns events of one calendar that overlap [from, to].
	Events(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error)
}
