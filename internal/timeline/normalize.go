package timeline

import (
	"fmt"
	"strings"
	"time"

	"apptline/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Normalize turns a separate date and time string into a local start/end
// pair. Both parts are read as wall-clock values in loc (time.Local when nil)
// even if the upstream value was serialized with a UTC marker, so a
// date-only field encoded as "2025-01-01T00:00:00Z" can never drag the
// appointment into the previous day.
//
// Durations below one minute are widened to one minute.
func Normalize(rawDate, rawTime string, durationMinutes int, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	date, err := cleanDate(rawDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	clock, err := cleanTime(rawTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start, err := time.ParseInLocation(dateTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q %q: %v", ErrInvalidTimestamp, rawDate, rawTime, err)
	}

	if durationMinutes < 1 {
		durationMinutes = 1
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return start, end, nil
}

// NormalizeAppointment builds an Interval from a raw appointment.
func NormalizeAppointment(raw model.RawAppointment, loc *time.Location) (Interval, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return Interval{}, ErrMissingID
	}

	start, end, err := Normalize(raw.StartDate, raw.StartTime, raw.DurationMinutes, loc)
	if err != nil {
		return Interval{}, err
	}

	return Interval{
		ID:              raw.ID,
		Start:           start,
		End:             end,
		DurationMinutes: int(end.Sub(start) / time.Minute),
		Label:           raw.Label,
		Patient:         raw.Patient,
		Doctor:          raw.Doctor,
		Status:          raw.Status,
		Metadata:        copyMetadata(raw.Metadata),
	}, nil
}

// cleanDate strips anything after the YYYY-MM-DD prefix ("T00:00:00Z",
// " 00:00:00+00", "Z", "+02:00") and validates the calendar date.
func cleanDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) > len(dateLayout) {
		switch s[len(dateLayout)] {
		case 'T', 't', ' ', 'Z', 'z', '+', '-':
			s = s[:len(dateLayout)]
		}
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("%w: date %q", ErrInvalidTimestamp, raw)
	}
	return s, nil
}

// cleanTime accepts "HH:MM" or "HH:MM:SS", optionally preceded by a date and
// "T" and optionally followed by fractional seconds and a zone designator,
// and returns "HH:MM:SS". The zone is discarded on purpose.
func cleanTime(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "Tt"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, "Zz+-"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		s += ":00"
	case 3:
	default:
		return "", fmt.Errorf("%w: time %q", ErrInvalidTimestamp, raw)
	}
	if n := len(parts[0]); n < 1 || n > 2 {
		return "", fmt.Errorf("%w: time %q", ErrInvalidTimestamp, raw)
	}
	for _, p := range parts[1:] {
		if len(p) != 2 {
			return "", fmt.Errorf("%w: time %q", ErrInvalidTimestamp, raw)
		}
	}
	if _, err := time.Parse("15:04:05", s); err != nil {
		return "", fmt.Errorf("%w: time %q", ErrInvalidTimestamp, raw)
	}
	return s, nil
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
