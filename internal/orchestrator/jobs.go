package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opencare/practice-orchestrator/internal/notify"
	"github.com/opencare/practice-orchestrator/internal/scheduling"
)

// Job names, stable across the API and logs.
const (
	JobReminders       = "appointment-reminders"
	JobReminderCalls   = "reminder-calls"
	JobFollowups       = "followup-messages"
	JobWaitlistSweep   = "waitlist-sweep"
	JobRingTimeoutScan = "ring-timeout-sweep"
)

// RegisterJobs wires the recurring work onto the scheduler: daily reminder
// texts and calls, post-visit follow-ups, the waitlist offer-expiry sweep and
// the ring-timeout sweep.
func (f *Facade) RegisterJobs() error {
	specs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) error
	}{
		{JobReminders, "0 8 * * *", f.sendReminders},
		{JobReminderCalls, "15 8 * * *", f.placeReminderCalls},
		{JobFollowups, "0 9 * * *", f.sendFollowups},
		{JobWaitlistSweep, "@every 30m", f.sweepWaitlist},
		{JobRingTimeoutScan, "@every 30s", f.sweepRingTimeouts},
	}

	for _, s := range specs {
		if err := f.sched.Register(s.name, s.spec, s.fn); err != nil {
			return fmt.Errorf("register %s: %w", s.name, err)
		}
	}
	return nil
}

// dayWindow returns [midnight, midnight+24h) for now+offset days, in the
// office timezone.
func (f *Facade) dayWindow(offsetDays int) scheduling.Window {
	loc := f.cal.Location()
	d := f.clk.Now().In(loc).AddDate(0, 0, offsetDays)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return scheduling.Window{Start: midnight, End: midnight.AddDate(0, 0, 1)}
}

func (f *Facade) sendReminders(ctx context.Context) error {
	tomorrow := f.dayWindow(1)
	appts, err := f.alloc.BookedBetween(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("list tomorrow's appointments: %w", err)
	}

	for _, appt := range appts {
		f.send(ctx, appt.PatientPhone, notify.ReminderBody(
			f.cal.BusinessName(), appt.Provider, appt.Type, appt.Window.Start))
	}
	f.log.Info().Int("count", len(appts)).Msg("appointment reminders sent")
	return nil
}

// placeReminderCalls dials an outbound reminder call per appointment
// tomorrow. Dial failures are per-patient: logged and skipped.
func (f *Facade) placeReminderCalls(ctx context.Context) error {
	tomorrow := f.dayWindow(1)
	appts, err := f.alloc.BookedBetween(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("list tomorrow's appointments: %w", err)
	}

	for _, appt := range appts {
		if appt.PatientPhone == "" {
			continue
		}
		if err := f.dialer.Dial(ctx, uuid.New(), appt.PatientPhone); err != nil {
			f.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("reminder call failed")
		}
	}
	return nil
}

func (f *Facade) sendFollowups(ctx context.Context) error {
	yesterday := f.dayWindow(-1)
	appts, err := f.alloc.BookedBetween(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("list yesterday's appointments: %w", err)
	}

	for _, appt := range appts {
		f.send(ctx, appt.PatientPhone, notify.FollowupBody(
			f.cal.BusinessName(), appt.PatientName, appt.Provider))
	}
	f.log.Info().Int("count", len(appts)).Msg("follow-up messages sent")
	return nil
}

// sweepWaitlist expires stale offers and re-enters the requeued entries into
// matching against slots still open. Best effort: an entry with no current
// match simply stays waiting.
func (f *Facade) sweepWaitlist(ctx context.Context) error {
	requeued, err := f.waitlist.SweepExpired(ctx, f.clk.Now())
	if err != nil {
		return fmt.Errorf("sweep expired offers: %w", err)
	}

	for _, entry := range requeued {
		if err := f.rematchEntry(ctx, entry); err != nil {
			f.log.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("re-match after expiry failed")
		}
	}
	return nil
}

func (f *Facade) rematchEntry(ctx context.Context, entry scheduling.WaitlistEntry) error {
	for slot, err := range f.alloc.Availability(ctx, entry.Provider, f.clk.Now(), 0) {
		if err != nil {
			return err
		}
		if !entry.Desired.IsZero() && !entry.Desired.Contains(slot.Window) {
			continue
		}
		offered, err := f.waitlist.TryOffer(ctx, entry.ID, slot.Provider, slot.Window)
		if err != nil {
			return err
		}
		if offered == nil {
			// The slot backs another entry's live offer; try the next one.
			continue
		}
		f.notifyOffer(ctx, offered)
		return nil
	}
	return nil
}

func (f *Facade) sweepRingTimeouts(ctx context.Context) error {
	f.calls.SweepRingTimeouts(ctx, f.clk.Now())
	return nil
}

// RunSweeps executes both deadline sweeps once. The standalone sweep worker
// calls this on its own cadence.
func (f *Facade) RunSweeps(ctx context.Context) error {
	if err := f.sweepWaitlist(ctx); err != nil {
		return err
	}
	return f.sweepRingTimeouts(ctx)
}
