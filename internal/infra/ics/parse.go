// internal/infra/ics/parse.go
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	domaincal "payment_reminder/internal/domain/calendar"
)

// VEvent is a parsed VEVENT before recurrence expansion.
type VEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	RRule   string
	ExDates []time.Time
}

// Parse reads an ICS payload. VEVENTs without a usable DTSTART are dropped.
func Parse(body []byte, loc *time.Location) ([]VEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	out := make([]VEvent, 0)
	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve, loc)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (VEvent, bool) {
	var ev VEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return ev, false
	}
	ev.AllDay = isDateValue(startProp)
	if ev.AllDay {
		start, err := parseICSTime(startProp.Value, loc)
		if err != nil {
			return ev, false
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
			if end, err := parseICSTime(endProp.Value, loc); err == nil {
				ev.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return ev, false
		}
		ev.Start = start
		// A missing or broken DTEND leaves End zero so the event is skipped later.
		if end, err := ve.GetEndAt(); err == nil {
			ev.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, exdateLocation(p, ev.Start.Location())); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	return ev, true
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func exdateLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return fallback
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// Expand turns parsed VEVENTs into concrete events whose start falls inside
// [from, to]. Recurring events keep the duration of their first instance.
func Expand(events []VEvent, from, to time.Time) []domaincal.Event {
	out := make([]domaincal.Event, 0, len(events))
	for _, ev := range events {
		if ev.RRule == "" {
			if !ev.Start.Before(from) && !ev.Start.After(to) {
				out = append(out, domaincal.Event{Name: ev.Summary, Start: ev.Start, End: ev.End, AllDay: ev.AllDay})
			}
			continue
		}

		opt, err := rrule.StrToROption(ev.RRule)
		if err != nil {
			continue
		}
		opt.Dtstart = ev.Start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			continue
		}
		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}

		var dur time.Duration
		if !ev.End.IsZero() {
			dur = ev.End.Sub(ev.Start)
		}
		for _, start := range set.Between(from.In(ev.Start.Location()), to.In(ev.Start.Location()), true) {
			inst := domaincal.Event{Name: ev.Summary, Start: start, AllDay: ev.AllDay}
			if !ev.End.IsZero() {
				inst.End = start.Add(dur)
			}
			out = append(out, inst)
		}
	}
	return out
}
