// internal/infra/ics/source.go
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	domaincal "payment_reminder/internal/domain/calendar"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrUnknownCalendar = errors.New("unknown calendar")

// Feed is one subscribed ICS calendar.
type Feed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type feedsFile struct {
	Calendars []Feed `yaml:"calendars"`
}

// LoadFeeds reads the feeds YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ics feeds file: %w", err)
	}
	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ics feeds file: %w", err)
	}
	for i, feed := range f.Calendars {
		if feed.URL == "" {
			return nil, fmt.Errorf("ics feed %d has no url", i)
		}
		if feed.ID == "" {
			f.Calendars[i].ID = feed.URL
		}
		if feed.Name == "" {
			f.Calendars[i].Name = f.Calendars[i].ID
		}
	}
	return f.Calendars, nil
}

// Source serves calendars from ICS feeds. Recurring events are expanded into
// single instances, matching what the hosted calendar API returns.
type Source struct {
	feeds  map[string]Feed
	order  []domaincal.Calendar
	client *http.Client
	loc    *time.Location
	logger *logrus.Entry
}

func NewSource(feeds []Feed, client *http.Client, loc *time.Location, logger *logrus.Entry) *Source {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Source{
		feeds:  make(map[string]Feed, len(feeds)),
		client: client,
		loc:    loc,
		logger: logger.WithField("component", "ics_source"),
	}
	for _, f := range feeds {
		s.feeds[f.ID] = f
		s.order = append(s.order, domaincal.Calendar{ID: f.ID, Name: f.Name})
	}
	return s
}

func (s *Source) Calendars(ctx context.Context) ([]domaincal.Calendar, error) {
	out := make([]domaincal.Calendar, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *Source) Events(ctx context.Context, calendarID string, from, to time.Time) ([]domaincal.Event, error) {
	feed, ok := s.feeds[calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}
	body, err := s.fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(body, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.ID, err)
	}
	events := Expand(parsed, from, to)
	s.logger.WithFields(logrus.Fields{"calendar": feed.Name, "events": len(events)}).Debug("Feed expanded")
	return events, nil
}

func (s *Source) fetch(ctx context.Context, feed Feed) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: unexpected status %d", feed.ID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
