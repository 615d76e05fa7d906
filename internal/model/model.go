package model

// Status is the booking status of an appointment. The layout engine carries
// it as opaque metadata; only the UI and the source filters interpret it.
type Status string

const (
	StatusProposed       Status = "proposed"
	StatusPending        Status = "pending"
	StatusBooked         Status = "booked"
	StatusArrived        Status = "arrived"
	StatusCheckedIn      Status = "checked-in"
	StatusFulfilled      Status = "fulfilled"
	StatusCancelled      Status = "cancelled"
	StatusNoShow         Status = "noshow"
	StatusEnteredInError Status = "entered-in-error"
	StatusWaitlist       Status = "waitlist"
)

var knownStatuses = map[Status]bool{
	StatusProposed: true, StatusPending: true, StatusBooked: true,
	StatusArrived: true, StatusCheckedIn: true, StatusFulfilled: true,
	StatusCancelled: true, StatusNoShow: true, StatusEnteredInError: true,
	StatusWaitlist: true,
}

// Known reports whether s is one of the statuses above.
func (s Status) Known() bool {
	return knownStatuses[s]
}

// RawAppointment is an appointment as delivered by a data source, before
// timestamp normalization. StartDate and StartTime arrive as separate
// strings and are always read as local wall-clock values.
type RawAppointment struct {
	ID string `json:"id"`

	// StartDate is a calendar date, "YYYY-MM-DD".
	StartDate string `json:"start_date"`
	// StartTime is a 24-hour wall-clock time, "HH:MM" or "HH:MM:SS".
	StartTime string `json:"start_time"`

	DurationMinutes int `json:"duration_minutes"`

	Label   string `json:"label"`
	Patient string `json:"patient,omitempty"`
	Doctor  string `json:"doctor,omitempty"`
	Status  Status `json:"status"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// UpdateKind names the change carried by an UpdateMessage.
type UpdateKind string

const (
	UpdateAdd    UpdateKind = "add"
	UpdateUpdate UpdateKind = "update"
	UpdateRemove UpdateKind = "remove"
)

// Valid reports whether k is add, update or remove.
func (k UpdateKind) Valid() bool {
	switch k {
	case UpdateAdd, UpdateUpdate, UpdateRemove:
		return true
	}
	return false
}

// UpdateMessage is a live change notification as it travels over the push
// channel. Remove messages only need ID; add/update carry the appointment.
type UpdateMessage struct {
	Kind        UpdateKind      `json:"kind"`
	ID          string          `json:"id,omitempty"`
	Appointment *RawAppointment `json:"appointment,omitempty"`
}

// TargetID returns the appointment ID the message refers to.
func (m UpdateMessage) TargetID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Appointment != nil {
		return m.Appointment.ID
	}
	return ""
}
