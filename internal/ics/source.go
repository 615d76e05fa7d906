package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "apptline/internal/log"
	"apptline/internal/model"
	"apptline/internal/timeline"
)

var ErrUnknownFeed = errors.New("no feed configured for resource")

// fetchLookahead extends the expansion range past the window end so an
// hourly re-anchor has the new last bucket filled before the next refresh.
const fetchLookahead = time.Hour

// FeedSource serves appointments for configured resources from their ICS
// feeds.
type FeedSource struct {
	fetcher *Fetcher
	feeds   map[string]Source
	loc     *time.Location
	hidden  map[model.Status]bool
}

// NewFeedSource builds a FeedSource. Appointments whose status is in
// hidden are dropped before they reach the timeline.
func NewFeedSource(fetcher *Fetcher, feeds []Source, loc *time.Location, hidden map[model.Status]bool) *FeedSource {
	if loc == nil {
		loc = time.Local
	}
	m := make(map[string]Source, len(feeds))
	for _, s := range feeds {
		m[s.ID] = s
	}
	return &FeedSource{fetcher: fetcher, feeds: m, loc: loc, hidden: hidden}
}

// FetchAppointments downloads the resource's feed and returns the
// appointments overlapping the window anchored at anchor, plus the hour
// after it.
func (s *FeedSource) FetchAppointments(ctx context.Context, resourceID string, anchor time.Time, spanHours int) ([]model.RawAppointment, error) {
	src, ok := s.feeds[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeed, resourceID)
	}

	w, err := timeline.ComputeWindow(anchor, spanHours, s.loc)
	if err != nil {
		return nil, err
	}

	res, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", resourceID, err)
	}

	events, err := ParseICS(src, res.Body)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandAppointments(events, ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      w.Start,
		RangeEnd:        w.End.Add(fetchLookahead),
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.RawAppointment, 0, len(expanded.Occurrences))
	hidden := 0
	for _, occ := range expanded.Occurrences {
		if s.hidden[occ.Event.Status] {
			hidden++
			continue
		}
		out = append(out, occ.ToRawAppointment())
	}

	appLog.Debug("feed appointments",
		"resource", resourceID,
		"events", len(events),
		"appointments", len(out),
		"hidden", hidden,
		"all_day_skipped", expanded.SkippedAllDay,
		"from_cache", res.FromCache,
	)
	return out, nil
}
