package ics

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "apptline/internal/log"
	"apptline/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

var ErrBadRange = errors.New("expand: RangeEnd is before RangeStart")

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone appointment wall-clock fields are written
	// in. Nil means time.Local.
	DisplayLocation *time.Location

	// Occurrences overlapping the half-open [RangeStart, RangeEnd) are kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single series. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// Occurrence is one concrete instance of a (possibly recurring) VEVENT.
type Occurrence struct {
	Event ParsedAppointment
	// InstanceID is the UID for single events and UID/start for instances
	// of a series, so every occurrence has a distinct appointment ID.
	InstanceID string
	Start      time.Time
	End        time.Time
}

// ExpandResult is the outcome of ExpandAppointments.
type ExpandResult struct {
	Occurrences []Occurrence
	// TruncatedEvents lists UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
	// SkippedAllDay counts all-day events, which have no place on an
	// hourly timeline.
	SkippedAllDay int
}

// ExpandAppointments turns parsed VEVENTs into concrete occurrences within
// the configured range. It handles RRULE series, EXDATE removals and
// RECURRENCE-ID overrides. Occurrences are returned sorted by start, then
// InstanceID.
func ExpandAppointments(events []ParsedAppointment, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, ErrBadRange
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedAppointment)
	overridesByUID := make(map[string][]ParsedAppointment)
	var uids []string

	for _, ev := range events {
		if ev.AllDay {
			result.SkippedAllDay++
			continue
		}
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range uids {
		truncated := false
		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, overridesByUID[uid], cfg)
			truncated = truncated || hitCap
			result.Occurrences = append(result.Occurrences, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: series truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		a, b := result.Occurrences[i], result.Occurrences[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.InstanceID < b.InstanceID
	})
	return result, nil
}

func expandEvent(ev ParsedAppointment, overrides []ParsedAppointment, cfg ExpandConfig) ([]Occurrence, bool) {
	if ev.RawRRule == "" {
		if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			return nil, false
		}
		return []Occurrence{makeOccurrence(ev, ev.UID, ev.Start, ev.End, cfg.DisplayLocation)}, false
	}
	return expandSeries(ev, overrides, cfg)
}

func expandSeries(ev ParsedAppointment, overrides []ParsedAppointment, cfg ExpandConfig) ([]Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("expand: bad RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by one duration so an instance that started
	// before the range but is still running is found.
	dur := ev.Duration()
	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)

	// Overrides may move an instance into the range from outside it.
	var out []Occurrence
	for _, o := range overrides {
		if o.Recurrence == nil || !overlaps(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		rid := o.Recurrence.In(loc)
		out = append(out, makeOccurrence(o, instanceID(ev.UID, rid), o.Start, o.End, cfg.DisplayLocation))
	}

	hitCap := false
	for _, s := range starts {
		if len(out) >= cfg.MaxOccurrencesPerEvent {
			hitCap = true
			break
		}
		if overridden(overrides, s) {
			continue
		}
		e := s.Add(dur)
		if !overlaps(s, e, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(ev, instanceID(ev.UID, s), s, e, cfg.DisplayLocation))
	}
	return out, hitCap
}

// overridden reports whether an override replaces the instance at start,
// whether or not the replacement lands in range.
func overridden(overrides []ParsedAppointment, start time.Time) bool {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return true
		}
	}
	return false
}

func instanceID(uid string, start time.Time) string {
	return uid + "/" + start.UTC().Format("20060102T150405Z")
}

func makeOccurrence(ev ParsedAppointment, id string, start, end time.Time, loc *time.Location) Occurrence {
	return Occurrence{
		Event:      ev,
		InstanceID: id,
		Start:      start.In(loc),
		End:        end.In(loc),
	}
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ToRawAppointment writes o as the wall-clock record the layout engine
// consumes.
func (o Occurrence) ToRawAppointment() model.RawAppointment {
	ev := o.Event
	minutes := int(math.Ceil(o.End.Sub(o.Start).Minutes()))

	meta := map[string]string{"uid": ev.UID}
	if ev.Source.ID != "" {
		meta["resource"] = ev.Source.ID
	}
	if ev.Location != "" {
		meta["location"] = ev.Location
	}
	if ev.Description != "" {
		meta["description"] = ev.Description
	}
	if len(ev.Categories) > 0 {
		meta["categories"] = strings.Join(ev.Categories, ",")
	}
	for k, v := range ev.Extra {
		if k == "patient" || k == "status" {
			continue
		}
		meta[k] = v
	}

	return model.RawAppointment{
		ID:              o.InstanceID,
		StartDate:       o.Start.Format("2006-01-02"),
		StartTime:       o.Start.Format("15:04:05"),
		DurationMinutes: minutes,
		Label:           ev.Summary,
		Patient:         ev.Patient,
		Doctor:          ev.Doctor,
		Status:          ev.Status,
		Metadata:        meta,
	}
}
