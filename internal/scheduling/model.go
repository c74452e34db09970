package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type WaitlistStatus string

const (
	WaitlistWaiting WaitlistStatus = "waiting"
	WaitlistOffered WaitlistStatus = "offered"
	WaitlistClaimed WaitlistStatus = "claimed"
	WaitlistRemoved WaitlistStatus = "removed"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start time.Time, d time.Duration) Window {
	return Window{Start: start, End: start.Add(d)}
}

func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether o lies fully inside w.
func (w Window) Contains(o Window) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

type Appointment struct {
	ID           uuid.UUID
	PatientName  string
	PatientDOB   string
	PatientPhone string
	Provider     string
	Type         string
	Window       Window
	Notes        string
	NewPatient   bool
	Status       AppointmentStatus
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type WaitlistEntry struct {
	ID           uuid.UUID
	PatientName  string
	PatientDOB   string
	PatientPhone string
	Provider     string // empty = any provider
	Desired      Window // zero = any time
	Type         string
	Notes        string
	Status       WaitlistStatus

	// Set only while Status is offered.
	OfferedProvider string
	OfferedWindow   Window
	OfferExpiresAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a derived open (provider, window) pair; never persisted.
type Slot struct {
	Provider string
	Window   Window
}

// Message is a caller-left note or voicemail reference taken by the front
// desk flow.
type Message struct {
	ID           uuid.UUID
	CallerName   string
	CallerPhone  string
	Body         string
	Kind         string // "message" or "voicemail"
	RecordingRef string
	CreatedAt    time.Time
}
