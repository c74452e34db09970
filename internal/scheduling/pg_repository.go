package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Appointments() AppointmentRepo { return s }
func (s *PgStore) Waitlist() WaitlistRepo        { return pgWaitlistRepo{s} }
func (s *PgStore) Messages() MessageRepo         { return pgMessageRepo{s} }

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelReason *string

	err := row.Scan(
		&a.ID,
		&a.PatientName,
		&a.PatientDOB,
		&a.PatientPhone,
		&a.Provider,
		&a.Type,
		&a.Window.Start,
		&a.Window.End,
		&a.Notes,
		&a.NewPatient,
		&a.Status,
		&cancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if cancelReason != nil {
		a.CancelReason = *cancelReason
	}
	return &a, nil
}

func scanEntry(row pgx.Row) (*WaitlistEntry, error) {
	var e WaitlistEntry
	var provider, offeredProvider *string
	var desiredStart, desiredEnd, offeredStart, offeredEnd *time.Time

	err := row.Scan(
		&e.ID,
		&e.PatientName,
		&e.PatientDOB,
		&e.PatientPhone,
		&provider,
		&desiredStart,
		&desiredEnd,
		&e.Type,
		&e.Notes,
		&e.Status,
		&offeredProvider,
		&offeredStart,
		&offeredEnd,
		&e.OfferExpiresAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	if provider != nil {
		e.Provider = *provider
	}
	if desiredStart != nil && desiredEnd != nil {
		e.Desired = Window{Start: *desiredStart, End: *desiredEnd}
	}
	if offeredProvider != nil {
		e.OfferedProvider = *offeredProvider
	}
	if offeredStart != nil && offeredEnd != nil {
		e.OfferedWindow = Window{Start: *offeredStart, End: *offeredEnd}
	}
	return &e, nil
}

const appointmentCols = `id, patient_name, patient_dob, patient_phone, provider, appt_type,
	start_time, end_time, notes, new_patient, status, cancel_reason, created_at, updated_at`

const entryCols = `id, patient_name, patient_dob, patient_phone, provider,
	desired_start, desired_end, appt_type, notes, status,
	offered_provider, offered_start, offered_end, offer_expires_at, created_at, updated_at`

// Appointments

func (s *PgStore) Create(ctx context.Context, a *Appointment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_name, patient_dob, patient_phone, provider, appt_type,
			start_time, end_time, notes, new_patient, status, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14)
	`, a.ID, a.PatientName, a.PatientDOB, a.PatientPhone, a.Provider, a.Type,
		a.Window.Start, a.Window.End, a.Notes, a.NewPatient, a.Status, a.CancelReason,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) Update(ctx context.Context, a *Appointment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    notes = $4,
		    status = $5,
		    cancel_reason = NULLIF($6, ''),
		    updated_at = $7
		WHERE id = $1
	`, a.ID, a.Window.Start, a.Window.End, a.Notes, a.Status, a.CancelReason, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) ListBookedByProvider(ctx context.Context, provider string, within Window) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE provider = $1
		  AND status = 'booked'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, provider, within.Start, within.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *PgStore) ListBookedBetween(ctx context.Context, within Window) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE status = 'booked'
		  AND start_time < $2
		  AND end_time > $1
		ORDER BY start_time, provider
	`, within.Start, within.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *PgStore) SearchByPatient(ctx context.Context, name, dob string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE status = 'booked'
		  AND patient_name ILIKE '%' || $1 || '%'
		  AND ($2 = '' OR patient_dob = $2)
		ORDER BY start_time
	`, name, dob)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Waitlist

type pgWaitlistRepo struct{ s *PgStore }

func (r pgWaitlistRepo) Create(ctx context.Context, e *WaitlistEntry) error {
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO waitlist_entries (id, patient_name, patient_dob, patient_phone, provider,
			desired_start, desired_end, appt_type, notes, status,
			offered_provider, offered_start, offered_end, offer_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15, $16)
	`, e.ID, e.PatientName, e.PatientDOB, e.PatientPhone, e.Provider,
		nullableTime(e.Desired.Start), nullableTime(e.Desired.End), e.Type, e.Notes, e.Status,
		e.OfferedProvider, nullableTime(e.OfferedWindow.Start), nullableTime(e.OfferedWindow.End),
		e.OfferExpiresAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (r pgWaitlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	row := r.s.pool.QueryRow(ctx, `
		SELECT `+entryCols+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r pgWaitlistRepo) Update(ctx context.Context, e *WaitlistEntry) error {
	tag, err := r.s.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    offered_provider = NULLIF($3, ''),
		    offered_start = $4,
		    offered_end = $5,
		    offer_expires_at = $6,
		    updated_at = $7
		WHERE id = $1
	`, e.ID, e.Status, e.OfferedProvider,
		nullableTime(e.OfferedWindow.Start), nullableTime(e.OfferedWindow.End),
		e.OfferExpiresAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update waitlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r pgWaitlistRepo) ListByStatus(ctx context.Context, status WaitlistStatus) ([]WaitlistEntry, error) {
	rows, err := r.s.pool.Query(ctx, `
		SELECT `+entryCols+`
		FROM waitlist_entries
		WHERE status = $1
		ORDER BY created_at, id
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Messages

type pgMessageRepo struct{ s *PgStore }

func (r pgMessageRepo) Create(ctx context.Context, m *Message) error {
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO messages (id, caller_name, caller_phone, body, kind, recording_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, m.ID, m.CallerName, m.CallerPhone, m.Body, m.Kind, m.RecordingRef, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r pgMessageRepo) List(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.s.pool.Query(ctx, `
		SELECT id, caller_name, caller_phone, body, kind, COALESCE(recording_ref, ''), created_at
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CallerName, &m.CallerPhone, &m.Body, &m.Kind, &m.RecordingRef, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
