package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrEntryNotFound       = errors.New("waitlist entry not found")
)

// AppointmentRepo contains all appointment store interactions needed by the
// allocator. Backed by Postgres in production and by the in-memory store in
// tests and single-instance deployments.
type AppointmentRepo interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) error

	// ListBookedByProvider returns booked appointments for one provider that
	// overlap the given window, ordered by start time.
	ListBookedByProvider(ctx context.Context, provider string, within Window) ([]Appointment, error)

	// ListBookedBetween returns booked appointments for all providers that
	// overlap the given window, ordered by start time.
	ListBookedBetween(ctx context.Context, within Window) ([]Appointment, error)

	// SearchByPatient matches booked appointments by case-insensitive name
	// substring and, when dob is non-empty, exact date of birth.
	SearchByPatient(ctx context.Context, name, dob string) ([]Appointment, error)
}

// WaitlistRepo stores waitlist entries. Listings are FIFO by creation time.
type WaitlistRepo interface {
	Create(ctx context.Context, entry *WaitlistEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	Update(ctx context.Context, entry *WaitlistEntry) error
	ListByStatus(ctx context.Context, status WaitlistStatus) ([]WaitlistEntry, error)
}

// MessageRepo stores caller messages and voicemail references.
type MessageRepo interface {
	Create(ctx context.Context, msg *Message) error
	List(ctx context.Context, limit int) ([]Message, error)
}
