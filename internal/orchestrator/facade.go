package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/clock"
	"github.com/opencare/practice-orchestrator/internal/jobs"
	"github.com/opencare/practice-orchestrator/internal/notify"
	"github.com/opencare/practice-orchestrator/internal/scheduling"
	"github.com/opencare/practice-orchestrator/internal/telephony"
)

// Facade composes the allocator, waitlist, call registry and job scheduler
// into the operations the boundary layer calls. It owns cross-component
// sequencing (calendar before waitlist) and emits notifications only after
// all state mutations have committed.
type Facade struct {
	alloc    *scheduling.Allocator
	waitlist *scheduling.Waitlist
	calls    *telephony.Registry
	msgs     scheduling.MessageRepo
	cal      *calendar.BusinessCalendar
	sender   notify.Sender
	dialer   telephony.Dialer
	sched    *jobs.Scheduler
	clk      clock.Clock
	log      zerolog.Logger
}

func New(
	alloc *scheduling.Allocator,
	waitlist *scheduling.Waitlist,
	calls *telephony.Registry,
	msgs scheduling.MessageRepo,
	cal *calendar.BusinessCalendar,
	sender notify.Sender,
	dialer telephony.Dialer,
	sched *jobs.Scheduler,
	clk clock.Clock,
	log zerolog.Logger,
) *Facade {
	return &Facade{
		alloc:    alloc,
		waitlist: waitlist,
		calls:    calls,
		msgs:     msgs,
		cal:      cal,
		sender:   sender,
		dialer:   dialer,
		sched:    sched,
		clk:      clk,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// DefaultSlotDuration is the office's configured visit length. Callers that
// omit an end time get a window of this length.
func (f *Facade) DefaultSlotDuration() time.Duration {
	return f.cal.SlotDuration()
}

// Appointments

func (f *Facade) CheckAvailability(ctx context.Context, provider string, from time.Time, horizonDays int) ([]scheduling.Slot, error) {
	if provider != "" && !f.cal.HasProvider(provider) {
		return nil, scheduling.ErrProviderUnknown
	}

	var slots []scheduling.Slot
	for slot, err := range f.alloc.Availability(ctx, provider, from, horizonDays) {
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (f *Facade) BookAppointment(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error) {
	appt, err := f.alloc.Book(ctx, req)
	if err != nil {
		return nil, err
	}

	f.send(ctx, appt.PatientPhone, notify.ConfirmationBody(
		f.cal.BusinessName(), appt.PatientName, appt.Provider, appt.Type, appt.Window.Start))
	if appt.NewPatient {
		f.send(ctx, appt.PatientPhone, notify.IntakeFormBody(f.cal.BusinessName(), appt.PatientName))
	}
	return appt, nil
}

func (f *Facade) FindAppointment(ctx context.Context, patientName, patientDOB string) ([]scheduling.Appointment, error) {
	return f.alloc.Search(ctx, patientName, patientDOB)
}

func (f *Facade) RescheduleAppointment(ctx context.Context, id uuid.UUID, newWindow scheduling.Window) (*scheduling.Appointment, error) {
	appt, freed, err := f.alloc.Reschedule(ctx, id, newWindow)
	if err != nil {
		return nil, err
	}

	offered, err := f.waitlist.OnSlotReleased(ctx, appt.Provider, freed)
	if err != nil {
		// The reschedule itself committed; a waitlist failure must not undo
		// it. Notifications wait for the sweep to hand the window off cleanly.
		f.log.Error().Err(err).Str("appointment_id", id.String()).Msg("waitlist match after reschedule failed")
		return appt, nil
	}

	f.send(ctx, appt.PatientPhone, notify.RescheduledBody(f.cal.BusinessName(), appt.Provider, appt.Window.Start))
	f.notifyOffer(ctx, offered)
	return appt, nil
}

// CancelAppointment cancels and then feeds the freed window to the waitlist,
// in that order. Notifications go out only after both state changes landed.
func (f *Facade) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*scheduling.Appointment, error) {
	appt, freed, err := f.alloc.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}

	offered, err := f.waitlist.OnSlotReleased(ctx, appt.Provider, freed)
	if err != nil {
		f.log.Error().Err(err).Str("appointment_id", id.String()).Msg("waitlist match after cancel failed")
		return appt, nil
	}

	f.send(ctx, appt.PatientPhone, notify.CancelledBody(f.cal.BusinessName(), appt.Provider, appt.Window.Start))
	f.notifyOffer(ctx, offered)
	return appt, nil
}

func (f *Facade) CompleteAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return f.alloc.Complete(ctx, id)
}

// Waitlist

func (f *Facade) AddToWaitlist(ctx context.Context, req scheduling.WaitlistRequest) (*scheduling.WaitlistEntry, error) {
	if req.Provider != "" && !f.cal.HasProvider(req.Provider) {
		return nil, scheduling.ErrProviderUnknown
	}
	return f.waitlist.Add(ctx, req)
}

// ClaimWaitlistOffer books the offered window for the claiming patient. If
// the window was consumed between offer and claim, the entry goes back to
// waiting and the caller sees the conflict.
func (f *Facade) ClaimWaitlistOffer(ctx context.Context, entryID uuid.UUID) (*scheduling.Appointment, error) {
	entry, err := f.waitlist.Claim(ctx, entryID)
	if err != nil {
		return nil, err
	}

	appt, err := f.alloc.Book(ctx, scheduling.BookRequest{
		PatientName:  entry.PatientName,
		PatientDOB:   entry.PatientDOB,
		PatientPhone: entry.PatientPhone,
		Provider:     entry.OfferedProvider,
		Type:         entry.Type,
		Window:       entry.OfferedWindow,
		Notes:        "Booked from waitlist",
	})
	if err != nil {
		if reopenErr := f.waitlist.Reopen(ctx, entryID); reopenErr != nil {
			f.log.Error().Err(reopenErr).Str("entry_id", entryID.String()).Msg("failed to reopen entry after booking conflict")
		}
		return nil, err
	}

	f.send(ctx, appt.PatientPhone, notify.ConfirmationBody(
		f.cal.BusinessName(), appt.PatientName, appt.Provider, appt.Type, appt.Window.Start))
	return appt, nil
}

func (f *Facade) RemoveFromWaitlist(ctx context.Context, entryID uuid.UUID) (*scheduling.WaitlistEntry, error) {
	return f.waitlist.Remove(ctx, entryID)
}

// Call routing

type TransferResult struct {
	Session *telephony.Session
	Routed  bool
	Note    string
}

// InitiateTransfer routes a live caller to a staff line. Outside business
// hours every transfer goes to the after-hours line. Billing questions are
// log-only unless a billing line is configured.
func (f *Facade) InitiateTransfer(ctx context.Context, caller string, line calendar.LineClass, reason string) (TransferResult, error) {
	if !f.cal.IsOpen(f.clk.Now()) && line != calendar.LineAfterHours {
		f.log.Info().Str("caller", caller).Str("line", string(line)).Msg("office closed, rerouting to after-hours line")
		line = calendar.LineAfterHours
	}

	target := f.cal.Line(line)
	if target == "" {
		if line == calendar.LineBilling {
			msg, err := f.TakeMessage(ctx, "", caller, "Billing question: "+reason)
			if err != nil {
				return TransferResult{}, err
			}
			f.log.Info().Str("caller", caller).Str("message_id", msg.ID.String()).Msg("billing question logged, no live billing line")
			return TransferResult{Note: "billing question recorded, the billing team will call back"}, nil
		}
		return TransferResult{Note: fmt.Sprintf("no live %s line configured, offer voicemail", line)}, nil
	}

	sess, err := f.calls.StartTransfer(ctx, caller, line, target)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Session: &sess, Routed: true}, nil
}

func (f *Facade) ReportCallStatus(ctx context.Context, sessionID uuid.UUID, sig telephony.Signal) (telephony.Session, error) {
	return f.calls.ReportStatus(ctx, sessionID, sig)
}

func (f *Facade) ReportRecordingComplete(ctx context.Context, sessionID uuid.UUID, recordingRef string) (telephony.Session, error) {
	sess, err := f.calls.ReportRecordingComplete(ctx, sessionID, recordingRef)
	if err != nil {
		return sess, err
	}
	if sess.State == telephony.StateVoicemailSaved {
		msg := &scheduling.Message{
			ID:           uuid.New(),
			CallerPhone:  sess.Caller,
			Body:         fmt.Sprintf("Voicemail for %s line", sess.Line),
			Kind:         "voicemail",
			RecordingRef: recordingRef,
			CreatedAt:    f.clk.Now(),
		}
		if err := f.msgs.Create(ctx, msg); err != nil {
			f.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to store voicemail message")
		}
	}
	return sess, nil
}

func (f *Facade) GetCallSession(id uuid.UUID) (telephony.Session, error) {
	return f.calls.Get(id)
}

// Messages

func (f *Facade) TakeMessage(ctx context.Context, callerName, callerPhone, body string) (*scheduling.Message, error) {
	msg := &scheduling.Message{
		ID:          uuid.New(),
		CallerName:  callerName,
		CallerPhone: callerPhone,
		Body:        body,
		Kind:        "message",
		CreatedAt:   f.clk.Now(),
	}
	if err := f.msgs.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return msg, nil
}

func (f *Facade) ListMessages(ctx context.Context, limit int) ([]scheduling.Message, error) {
	return f.msgs.List(ctx, limit)
}

// Jobs

func (f *Facade) RunJob(ctx context.Context, name string) error {
	return f.sched.RunNow(ctx, name)
}

func (f *Facade) JobStatuses() []jobs.JobStatus {
	return f.sched.Snapshot()
}

// send delivers one notification, logging failures. Notification problems
// never fail the operation that triggered them.
func (f *Facade) send(ctx context.Context, recipient, body string) {
	if recipient == "" {
		return
	}
	if err := f.sender.Send(ctx, recipient, body); err != nil {
		f.log.Error().Err(err).Str("recipient", recipient).Msg("notification send failed")
	}
}

func (f *Facade) notifyOffer(ctx context.Context, entry *scheduling.WaitlistEntry) {
	if entry == nil {
		return
	}
	var expires time.Time
	if entry.OfferExpiresAt != nil {
		expires = *entry.OfferExpiresAt
	}
	f.send(ctx, entry.PatientPhone, notify.WaitlistOfferBody(
		f.cal.BusinessName(), entry.PatientName, entry.OfferedProvider, entry.OfferedWindow.Start, expires))
}
