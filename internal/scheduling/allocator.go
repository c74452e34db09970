package scheduling

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/clock"
	"github.com/opencare/practice-orchestrator/internal/lock"
)

const defaultHorizonDays = 5

var (
	ErrSlotConflict    = errors.New("window conflicts with a booked appointment")
	ErrProviderBusy    = errors.New("provider calendar is busy, please retry")
	ErrProviderUnknown = errors.New("unknown provider")
	ErrInvalidWindow   = errors.New("window end must be after start")
	ErrNotBooked       = errors.New("appointment is not in booked status")
)

type BookRequest struct {
	PatientName  string
	PatientDOB   string
	PatientPhone string
	Provider     string
	Type         string
	Window       Window
	Notes        string
	NewPatient   bool
}

// Allocator owns the appointment calendar: open-slot queries, booking,
// rescheduling and cancellation. The conflict check and creation run inside
// a per-provider lock so concurrent bookings for the same provider cannot
// both succeed on an overlapping window.
type Allocator struct {
	repo   AppointmentRepo
	locker lock.Locker
	cal    *calendar.BusinessCalendar
	clk    clock.Clock
	log    zerolog.Logger
}

func NewAllocator(repo AppointmentRepo, locker lock.Locker, cal *calendar.BusinessCalendar, clk clock.Clock, log zerolog.Logger) *Allocator {
	return &Allocator{
		repo:   repo,
		locker: locker,
		cal:    cal,
		clk:    clk,
		log:    log.With().Str("component", "allocator").Logger(),
	}
}

// Availability yields open (provider, window) pairs within the horizon,
// chronological, ties broken by provider name. The sequence is lazy: booked
// appointments are loaded one business day at a time, so callers that stop
// early never touch later days. An empty provider means all providers.
func (a *Allocator) Availability(ctx context.Context, provider string, from time.Time, horizonDays int) iter.Seq2[Slot, error] {
	if horizonDays <= 0 {
		horizonDays = defaultHorizonDays
	}
	if from.IsZero() {
		from = a.clk.Now()
	}

	providers := []string{provider}
	if provider == "" {
		providers = providers[:0]
		for _, p := range a.cal.Providers() {
			providers = append(providers, p.Name)
		}
	}

	return func(yield func(Slot, error) bool) {
		for _, day := range a.cal.BusinessDays(from, horizonDays) {
			dayWindow := Window{Start: day, End: day.AddDate(0, 0, 1)}

			booked := make(map[string][]Appointment, len(providers))
			for _, p := range providers {
				appts, err := a.repo.ListBookedByProvider(ctx, p, dayWindow)
				if err != nil {
					yield(Slot{}, fmt.Errorf("list booked for %s: %w", p, err))
					return
				}
				booked[p] = appts
			}

			for _, start := range a.cal.SlotStarts(day) {
				if start.Before(from) {
					continue
				}
				w := NewWindow(start, a.cal.SlotDuration())
				for _, p := range providers {
					if overlapsAny(w, booked[p]) {
						continue
					}
					if !yield(Slot{Provider: p, Window: w}, nil) {
						return
					}
				}
			}
		}
	}
}

func overlapsAny(w Window, appts []Appointment) bool {
	for _, a := range appts {
		if a.Window.Overlaps(w) {
			return true
		}
	}
	return false
}

// Book reserves a window for a patient. The overlap check and the insert are
// indivisible with respect to concurrent bookings for the same provider.
func (a *Allocator) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if !a.cal.HasProvider(req.Provider) {
		return nil, ErrProviderUnknown
	}
	if !req.Window.End.After(req.Window.Start) {
		return nil, ErrInvalidWindow
	}

	var created *Appointment

	err := a.locker.WithProviderLock(ctx, req.Provider, func(lockCtx context.Context) error {
		existing, err := a.repo.ListBookedByProvider(lockCtx, req.Provider, req.Window)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if len(existing) > 0 {
			return ErrSlotConflict
		}

		now := a.clk.Now()
		appt := &Appointment{
			ID:           uuid.New(),
			PatientName:  req.PatientName,
			PatientDOB:   req.PatientDOB,
			PatientPhone: req.PatientPhone,
			Provider:     req.Provider,
			Type:         req.Type,
			Window:       req.Window,
			Notes:        req.Notes,
			NewPatient:   req.NewPatient,
			Status:       StatusBooked,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := a.repo.Create(lockCtx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrProviderBusy
		}
		return nil, err
	}

	a.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider", created.Provider).
		Time("start", created.Window.Start).
		Msg("appointment booked")

	return created, nil
}

// Reschedule moves a booked appointment to a new window, preserving its
// identifier. Returns the freed old window so the caller can feed it to the
// waitlist.
func (a *Allocator) Reschedule(ctx context.Context, id uuid.UUID, newWindow Window) (*Appointment, Window, error) {
	if !newWindow.End.After(newWindow.Start) {
		return nil, Window{}, ErrInvalidWindow
	}

	appt, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, Window{}, err
	}
	if appt.Status != StatusBooked {
		// Cancelled and completed appointments cannot be moved; callers see
		// the same NotFound as for a missing identifier.
		return nil, Window{}, ErrAppointmentNotFound
	}

	var freed Window

	err = a.locker.WithProviderLock(ctx, appt.Provider, func(lockCtx context.Context) error {
		existing, err := a.repo.ListBookedByProvider(lockCtx, appt.Provider, newWindow)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		for _, other := range existing {
			if other.ID != appt.ID {
				return ErrSlotConflict
			}
		}

		freed = appt.Window
		appt.Window = newWindow
		appt.Notes = appendNote(appt.Notes, fmt.Sprintf("Rescheduled to %s", newWindow.Start.Format(time.RFC3339)))
		appt.UpdatedAt = a.clk.Now()
		if err := a.repo.Update(lockCtx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, Window{}, ErrProviderBusy
		}
		return nil, Window{}, err
	}

	a.log.Info().
		Str("appointment_id", appt.ID.String()).
		Time("new_start", newWindow.Start).
		Time("freed_start", freed.Start).
		Msg("appointment rescheduled")

	return appt, freed, nil
}

// Cancel marks a booked appointment cancelled and returns the freed window.
func (a *Allocator) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, Window, error) {
	appt, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, Window{}, err
	}
	if appt.Status != StatusBooked {
		return nil, Window{}, ErrNotBooked
	}

	appt.Status = StatusCancelled
	appt.CancelReason = reason
	if reason != "" {
		appt.Notes = appendNote(appt.Notes, "Cancelled: "+reason)
	} else {
		appt.Notes = appendNote(appt.Notes, "Cancelled")
	}
	appt.UpdatedAt = a.clk.Now()
	if err := a.repo.Update(ctx, appt); err != nil {
		return nil, Window{}, fmt.Errorf("update appointment: %w", err)
	}

	a.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("reason", reason).
		Msg("appointment cancelled")

	return appt, appt.Window, nil
}

// Complete marks a booked appointment completed; completed appointments are
// immutable.
func (a *Allocator) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusBooked {
		return nil, ErrNotBooked
	}

	appt.Status = StatusCompleted
	appt.UpdatedAt = a.clk.Now()
	if err := a.repo.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return appt, nil
}

func (a *Allocator) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return a.repo.GetByID(ctx, id)
}

func (a *Allocator) Search(ctx context.Context, name, dob string) ([]Appointment, error) {
	return a.repo.SearchByPatient(ctx, name, dob)
}

// BookedBetween lists booked appointments overlapping the window, all
// providers. Used by the reminder and follow-up jobs.
func (a *Allocator) BookedBetween(ctx context.Context, w Window) ([]Appointment, error) {
	return a.repo.ListBookedBetween(ctx, w)
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + " | " + note
}
