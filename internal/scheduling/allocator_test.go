package scheduling

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/clock"
	"github.com/opencare/practice-orchestrator/internal/lock"
)

func newTestAllocator(t *testing.T) (*Allocator, *MemoryStore, *clock.Fake, *calendar.BusinessCalendar) {
	t.Helper()

	cal, err := calendar.Load("")
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	// A Monday morning before office hours.
	clk := clock.NewFake(time.Date(2026, 3, 2, 7, 0, 0, 0, cal.Location()))
	store := NewMemoryStore()
	alloc := NewAllocator(store.Appointments(), lock.NewLocalLocker(), cal, clk, zerolog.Nop())
	return alloc, store, clk, cal
}

func slotAt(cal *calendar.BusinessCalendar, day, hour, min int) Window {
	start := time.Date(2026, 3, day, hour, min, 0, 0, cal.Location())
	return NewWindow(start, cal.SlotDuration())
}

func TestBookConflict(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()
	window := slotAt(cal, 2, 10, 0)

	first, err := alloc.Book(ctx, BookRequest{PatientName: "Maria Garcia", Provider: "Dr. Johnson", Window: window})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if first.Status != StatusBooked {
		t.Fatalf("status = %s, want booked", first.Status)
	}

	_, err = alloc.Book(ctx, BookRequest{PatientName: "James Lee", Provider: "Dr. Johnson", Window: window})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("second booking error = %v, want ErrSlotConflict", err)
	}

	// Same window with another provider is fine.
	if _, err := alloc.Book(ctx, BookRequest{PatientName: "James Lee", Provider: "Dr. Patel", Window: window}); err != nil {
		t.Fatalf("booking other provider: %v", err)
	}

	// Partial overlap conflicts too.
	overlap := NewWindow(window.Start.Add(15*time.Minute), cal.SlotDuration())
	_, err = alloc.Book(ctx, BookRequest{PatientName: "Ana Silva", Provider: "Dr. Johnson", Window: overlap})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("overlap booking error = %v, want ErrSlotConflict", err)
	}

	// Back-to-back does not: windows are half-open.
	adjacent := NewWindow(window.End, cal.SlotDuration())
	if _, err := alloc.Book(ctx, BookRequest{PatientName: "Ana Silva", Provider: "Dr. Johnson", Window: adjacent}); err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}
}

func TestBookValidation(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()

	_, err := alloc.Book(ctx, BookRequest{PatientName: "x", Provider: "Dr. Nobody", Window: slotAt(cal, 2, 10, 0)})
	if !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("error = %v, want ErrProviderUnknown", err)
	}

	w := slotAt(cal, 2, 10, 0)
	w.End = w.Start
	_, err = alloc.Book(ctx, BookRequest{PatientName: "x", Provider: "Dr. Johnson", Window: w})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("error = %v, want ErrInvalidWindow", err)
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()
	window := slotAt(cal, 2, 11, 0)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = alloc.Book(ctx, BookRequest{PatientName: "Caller", Provider: "Dr. Smith", Window: window})
		}(i)
	}
	wg.Wait()

	won, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1 (%d conflicts)", won, conflicted)
	}
}

func TestCancelReopensSlot(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()
	window := slotAt(cal, 2, 14, 0)

	appt, err := alloc.Book(ctx, BookRequest{PatientName: "Maria Garcia", Provider: "Dr. Johnson", Window: window})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	cancelled, freed, err := alloc.Cancel(ctx, appt.ID, "feeling better")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if !freed.Start.Equal(window.Start) || !freed.End.Equal(window.End) {
		t.Fatalf("freed window = %v, want %v", freed, window)
	}

	// The window is open again.
	if _, err := alloc.Book(ctx, BookRequest{PatientName: "James Lee", Provider: "Dr. Johnson", Window: window}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	// Double cancel is rejected.
	if _, _, err := alloc.Cancel(ctx, appt.ID, ""); !errors.Is(err, ErrNotBooked) {
		t.Fatalf("double cancel error = %v, want ErrNotBooked", err)
	}
}

func TestReschedule(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()

	old := slotAt(cal, 2, 9, 0)
	appt, err := alloc.Book(ctx, BookRequest{PatientName: "Maria Garcia", Provider: "Dr. Johnson", Window: old})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	// Shifting by less than a slot overlaps the appointment's own window;
	// that must not count as a conflict.
	shifted := NewWindow(old.Start.Add(15*time.Minute), cal.SlotDuration())
	moved, freed, err := alloc.Reschedule(ctx, appt.ID, shifted)
	if err != nil {
		t.Fatalf("reschedule over self: %v", err)
	}
	if !freed.Start.Equal(old.Start) {
		t.Fatalf("freed start = %s, want %s", freed.Start, old.Start)
	}
	if !moved.Window.Start.Equal(shifted.Start) {
		t.Fatalf("new start = %s, want %s", moved.Window.Start, shifted.Start)
	}

	// Moving onto another patient's window conflicts.
	taken := slotAt(cal, 2, 15, 0)
	if _, err := alloc.Book(ctx, BookRequest{PatientName: "James Lee", Provider: "Dr. Johnson", Window: taken}); err != nil {
		t.Fatalf("book taken: %v", err)
	}
	if _, _, err := alloc.Reschedule(ctx, appt.ID, taken); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("reschedule onto taken error = %v, want ErrSlotConflict", err)
	}

	// A cancelled appointment cannot be moved.
	if _, _, err := alloc.Cancel(ctx, appt.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := alloc.Reschedule(ctx, appt.ID, slotAt(cal, 3, 9, 0)); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("reschedule cancelled error = %v, want ErrAppointmentNotFound", err)
	}
}

func TestAvailabilityOrderingAndExclusion(t *testing.T) {
	t.Parallel()
	alloc, _, clk, cal := newTestAllocator(t)
	ctx := context.Background()

	booked := slotAt(cal, 2, 8, 0)
	if _, err := alloc.Book(ctx, BookRequest{PatientName: "Maria Garcia", Provider: "Dr. Johnson", Window: booked}); err != nil {
		t.Fatalf("book: %v", err)
	}

	var slots []Slot
	for slot, err := range alloc.Availability(ctx, "", clk.Now(), 2) {
		if err != nil {
			t.Fatalf("availability: %v", err)
		}
		slots = append(slots, slot)
	}

	// 16 slots per day, 3 providers, 2 days, minus the one booked.
	if want := 16*3*2 - 1; len(slots) != want {
		t.Fatalf("got %d slots, want %d", len(slots), want)
	}

	for i := 1; i < len(slots); i++ {
		prev, cur := slots[i-1], slots[i]
		if cur.Window.Start.Before(prev.Window.Start) {
			t.Fatalf("slots out of order at %d: %s after %s", i, cur.Window.Start, prev.Window.Start)
		}
		if cur.Window.Start.Equal(prev.Window.Start) && cur.Provider < prev.Provider {
			t.Fatalf("tie at %s not broken by provider name: %q after %q", cur.Window.Start, cur.Provider, prev.Provider)
		}
	}

	for _, s := range slots {
		if s.Provider == "Dr. Johnson" && s.Window.Overlaps(booked) {
			t.Fatalf("booked window %v still offered", s.Window)
		}
	}
}

func TestAvailabilitySkipsPastSlots(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()

	// Mid-morning Monday: everything before 10:30 is gone.
	from := time.Date(2026, 3, 2, 10, 15, 0, 0, cal.Location())
	for slot, err := range alloc.Availability(ctx, "Dr. Patel", from, 1) {
		if err != nil {
			t.Fatalf("availability: %v", err)
		}
		if slot.Window.Start.Before(from) {
			t.Fatalf("slot %s is before from %s", slot.Window.Start, from)
		}
	}
}

func TestSearchByPatient(t *testing.T) {
	t.Parallel()
	alloc, _, _, cal := newTestAllocator(t)
	ctx := context.Background()

	if _, err := alloc.Book(ctx, BookRequest{PatientName: "Maria Garcia", PatientDOB: "1985-04-12", Provider: "Dr. Johnson", Window: slotAt(cal, 2, 10, 0)}); err != nil {
		t.Fatalf("book: %v", err)
	}

	found, err := alloc.Search(ctx, "maria", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("got %d results, want 1", len(found))
	}

	found, err = alloc.Search(ctx, "maria", "1990-01-01")
	if err != nil {
		t.Fatalf("search with dob: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("got %d results for wrong dob, want 0", len(found))
	}
}

// Throw random windows at Book and Reschedule and check afterwards that no
// provider's calendar holds two overlapping booked appointments.
func TestOverlapInvariantRandomWindows(t *testing.T) {
	t.Parallel()
	alloc, store, _, cal := newTestAllocator(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	providers := []string{"Dr. Johnson", "Dr. Patel"}
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, cal.Location())

	randomWindow := func() Window {
		start := day.Add(time.Duration(rng.Intn(17*4)) * 15 * time.Minute)
		length := time.Duration(1+rng.Intn(8)) * 15 * time.Minute
		return Window{Start: start, End: start.Add(length)}
	}

	var booked []uuid.UUID
	for i := 0; i < 300; i++ {
		if len(booked) > 0 && rng.Intn(4) == 0 {
			id := booked[rng.Intn(len(booked))]
			if _, _, err := alloc.Reschedule(ctx, id, randomWindow()); err != nil && !errors.Is(err, ErrSlotConflict) {
				t.Fatalf("reschedule: %v", err)
			}
			continue
		}
		appt, err := alloc.Book(ctx, BookRequest{
			PatientName: "Patient",
			Provider:    providers[rng.Intn(len(providers))],
			Window:      randomWindow(),
		})
		if err != nil {
			if !errors.Is(err, ErrSlotConflict) {
				t.Fatalf("book: %v", err)
			}
			continue
		}
		booked = append(booked, appt.ID)
	}
	if len(booked) == 0 {
		t.Fatal("no booking succeeded")
	}

	// Listings come back sorted by start, so any overlap shows up between
	// neighbours.
	for _, provider := range providers {
		appts, err := store.ListBookedByProvider(ctx, provider, Window{Start: day, End: day.AddDate(0, 0, 2)})
		if err != nil {
			t.Fatalf("list booked for %s: %v", provider, err)
		}
		for i := 1; i < len(appts); i++ {
			if appts[i-1].Window.Overlaps(appts[i].Window) {
				t.Fatalf("%s double-booked: %v overlaps %v", provider, appts[i-1].Window, appts[i].Window)
			}
		}
	}
}
