package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "apptline/internal/log"
	"apptline/internal/model"
)

// extPrefix marks vendor properties copied into appointment metadata,
// e.g. X-APPT-ROOM:3 becomes metadata["room"] = "3".
const extPrefix = "X-APPT-"

var (
	ErrEmptyBody  = errors.New("empty ICS body")
	ErrMissingUID = errors.New("missing UID")
	ErrNoStart    = errors.New("missing DTSTART")
)

// ParsedAppointment is one VEVENT read as an appointment. Recurrence is
// recorded but not expanded here; see ExpandAppointments.
type ParsedAppointment struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Categories  []string

	Patient string
	Doctor  string
	Status  model.Status

	// Extra holds X-APPT-* properties keyed by the lower-cased suffix.
	Extra map[string]string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, set on overrides only
	IsOverride bool
}

// Duration is End-Start.
func (p ParsedAppointment) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// ParseICS reads every VEVENT in body. Events that cannot be read are
// logged and skipped; only an unreadable calendar fails the whole call.
func ParseICS(src Source, body []byte) ([]ParsedAppointment, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar %s: %w", src.ID, err)
	}

	out := make([]ParsedAppointment, 0)
	for _, ve := range cal.Events() {
		p, perr := parseVEvent(src, ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "resource", src.ID, "url", redactURL(src.URL), "err", perr)
			continue
		}
		out = append(out, p)
	}

	appLog.Debug("ics parse completed", "resource", src.ID, "event_count", len(out))
	return out, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedAppointment, error) {
	out := ParsedAppointment{Source: src, Extra: map[string]string{}}

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return out, ErrMissingUID
	}
	out.UID = uid

	if n, err := strconv.Atoi(propValue(ve, ical.ComponentPropertySequence)); err == nil {
		out.Seq = n
	}

	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}

	for _, p := range ve.Properties {
		name := strings.ToUpper(p.IANAToken)
		if strings.HasPrefix(name, extPrefix) && len(name) > len(extPrefix) {
			out.Extra[strings.ToLower(name[len(extPrefix):])] = p.Value
		}
	}

	out.Doctor = doctorOf(ve)
	out.Patient = patientOf(ve, out.Extra)
	out.Status = statusOf(propValue(ve, ical.ComponentPropertyStatus), out.Extra["status"])

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, ErrNoStart
	}
	out.AllDay = isDateOnly(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		out.End = end
	case ve.GetProperty(ical.ComponentPropertyDuration) != nil:
		d, derr := parseDuration(propValue(ve, ical.ComponentPropertyDuration))
		if derr != nil {
			return out, fmt.Errorf("DURATION: %w", derr)
		}
		out.End = start.Add(d)
	case out.AllDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	out.RawRRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzidOf(p.ICalParameters)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, err := parseICSTime(rid.Value, tzidOf(rid.ICalParameters)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func firstParam(params map[string][]string, name string) string {
	if vs, ok := params[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func tzidOf(params map[string][]string) string {
	return firstParam(params, "TZID")
}

func isDateOnly(p *ical.IANAProperty) bool {
	if strings.EqualFold(firstParam(p.ICalParameters, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// doctorOf reads the ORGANIZER common name, falling back to its address.
func doctorOf(ve *ical.VEvent) string {
	p := ve.GetProperty(ical.ComponentPropertyOrganizer)
	if p == nil {
		return ""
	}
	if cn := firstParam(p.ICalParameters, string(ical.ParameterCn)); cn != "" {
		return cn
	}
	return strings.TrimPrefix(p.Value, "mailto:")
}

// patientOf prefers X-APPT-PATIENT, then the first ATTENDEE.
func patientOf(ve *ical.VEvent, extra map[string]string) string {
	if v := extra["patient"]; v != "" {
		return v
	}
	for _, a := range ve.Attendees() {
		if cn := firstParam(a.ICalParameters, string(ical.ParameterCn)); cn != "" {
			return cn
		}
		if email := a.Email(); email != "" {
			return email
		}
	}
	return ""
}

// statusOf maps the iCalendar STATUS onto appointment statuses. An
// explicit X-APPT-STATUS with a known value wins.
func statusOf(icalStatus, override string) model.Status {
	if s := model.Status(strings.ToLower(strings.TrimSpace(override))); s.Known() {
		return s
	}
	switch strings.ToUpper(icalStatus) {
	case "TENTATIVE":
		return model.StatusPending
	case "CANCELLED":
		return model.StatusCancelled
	default:
		return model.StatusBooked
	}
}

// parseICSTime parses a bare DATE or DATE-TIME value as used by EXDATE and
// RECURRENCE-ID. A TZID that cannot be loaded falls back to time.Local.
func parseICSTime(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	loc := time.Local
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// parseDuration reads an RFC 5545 DURATION such as PT30M, PT1H15M or P1D.
func parseDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			inTime = true
			continue
		}

		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		num = ""

		var unit time.Duration
		switch {
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		d += time.Duration(n) * unit
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}

	if neg {
		d = -d
	}
	return d, nil
}
