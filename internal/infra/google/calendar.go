// internal/infra/google/calendar.go
package google

import (
	"context"
	"fmt"
	"time"

	domaincal "payment_reminder/internal/domain/calendar"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarSource reads every calendar visible to the OAuth account.
type CalendarSource struct {
	svc *calendar.Service
	loc *time.Location // used for all-day dates
}

func NewCalendarSource(ctx context.Context, ts oauth2.TokenSource, loc *time.Location, opts ...option.ClientOption) (*CalendarSource, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarSource{svc: svc, loc: loc}, nil
}

func (s *CalendarSource) Calendars(ctx context.Context) ([]domaincal.Calendar, error) {
	var out []domaincal.Calendar
	err := s.svc.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			out = append(out, domaincal.Calendar{ID: item.Id, Name: item.Summary})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	return out, nil
}

func (s *CalendarSource) Events(ctx context.Context, calendarID string, from, to time.Time) ([]domaincal.Event, error) {
	var out []domaincal.Event
	call := s.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			out = append(out, ConvertEvent(item, s.loc))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events for calendar %s: %w", calendarID, err)
	}
	return out, nil
}

// ConvertEvent maps an API event. Fields that are missing or unparseable stay
// zero, which makes the aggregator skip the event.
func ConvertEvent(item *calendar.Event, loc *time.Location) domaincal.Event {
	ev := domaincal.Event{Name: item.Summary}
	var allDay bool
	ev.Start, allDay = eventTime(item.Start, loc)
	ev.End, _ = eventTime(item.End, loc)
	ev.AllDay = allDay
	return ev
}

func eventTime(edt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, false
	}
	if edt.Date != "" {
		if loc == nil {
			loc = time.UTC
		}
		t, err := time.ParseInLocation("2006-01-02", edt.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
