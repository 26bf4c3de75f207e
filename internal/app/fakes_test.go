package app

import (
	"context"
	"sync"
	"time"

	"payment_reminder/internal/domain/billing"
	"payment_reminder/internal/domain/calendar"
	"payment_reminder/internal/domain/messaging"
)

type fakeSource struct {
	calendars []calendar.Calendar
	events    map[string][]calendar.Event
	listErr   error
	eventErrs map[string]error
}

func (f *fakeSource) Calendars(ctx context.Context) ([]calendar.Calendar, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.calendars, nil
}

func (f *fakeSource) Events(ctx context.Context, calendarID string, from, to time.Time) ([]calendar.Event, error) {
	if err := f.eventErrs[calendarID]; err != nil {
		return nil, err
	}
	return f.events[calendarID], nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []messaging.Message
	fail map[string]error
}

func (f *fakeSender) Send(ctx context.Context, msg messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[msg.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type staticRates struct {
	rows []billing.RateRow
	err  error
}

func (s staticRates) Load(ctx context.Context) ([]billing.RateRow, error) {
	return s.rows, s.err
}

func mustLoc(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var chicago = mustLoc("America/Chicago")

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, chicago)
}

func event(name string, start time.Time, minutes int) calendar.Event {
	return calendar.Event{Name: name, Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}
