package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/clock"
)

func newTestWaitlist(t *testing.T) (*Waitlist, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	return NewWaitlist(store.Waitlist(), clk, 2*time.Hour, zerolog.Nop()), clk
}

func window(clk *clock.Fake, hoursAhead int) Window {
	return NewWindow(clk.Now().Add(time.Duration(hoursAhead)*time.Hour), 30*time.Minute)
}

func TestOfferAndClaim(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	entry, err := wl.Add(ctx, WaitlistRequest{PatientName: "Maria Garcia", PatientPhone: "555-0101"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	released := window(clk, 26)
	offered, err := wl.OnSlotReleased(ctx, "Dr. Johnson", released)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if offered == nil || offered.ID != entry.ID {
		t.Fatalf("offered = %v, want entry %s", offered, entry.ID)
	}
	if offered.Status != WaitlistOffered {
		t.Fatalf("status = %s, want offered", offered.Status)
	}
	if offered.OfferExpiresAt == nil || !offered.OfferExpiresAt.Equal(clk.Now().Add(2*time.Hour)) {
		t.Fatalf("expiry = %v, want now+2h", offered.OfferExpiresAt)
	}

	clk.Advance(90 * time.Minute)
	claimed, err := wl.Claim(ctx, entry.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != WaitlistClaimed {
		t.Fatalf("status = %s, want claimed", claimed.Status)
	}
	if claimed.OfferExpiresAt != nil {
		t.Fatal("claimed entry still carries an expiry")
	}
}

func TestClaimAfterExpiryRequeues(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	entry, err := wl.Add(ctx, WaitlistRequest{PatientName: "James Lee"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wl.OnSlotReleased(ctx, "Dr. Patel", window(clk, 26)); err != nil {
		t.Fatalf("release: %v", err)
	}

	clk.Advance(2*time.Hour + time.Minute)

	if _, err := wl.Claim(ctx, entry.ID); !errors.Is(err, ErrExpiredOffer) {
		t.Fatalf("claim error = %v, want ErrExpiredOffer", err)
	}

	got, err := wl.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != WaitlistWaiting {
		t.Fatalf("status after stale claim = %s, want waiting", got.Status)
	}
	if got.OfferedProvider != "" || !got.OfferedWindow.IsZero() {
		t.Fatal("requeued entry still carries offer details")
	}
}

func TestClaimNeverOffered(t *testing.T) {
	t.Parallel()
	wl, _ := newTestWaitlist(t)
	ctx := context.Background()

	entry, err := wl.Add(ctx, WaitlistRequest{PatientName: "Ana Silva"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wl.Claim(ctx, entry.ID); !errors.Is(err, ErrExpiredOffer) {
		t.Fatalf("claim error = %v, want ErrExpiredOffer", err)
	}
}

func TestOfferGoesToOldestCompatible(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	older, err := wl.Add(ctx, WaitlistRequest{PatientName: "First"})
	if err != nil {
		t.Fatalf("add older: %v", err)
	}
	clk.Advance(time.Minute)
	if _, err := wl.Add(ctx, WaitlistRequest{PatientName: "Second"}); err != nil {
		t.Fatalf("add newer: %v", err)
	}

	offered, err := wl.OnSlotReleased(ctx, "Dr. Johnson", window(clk, 26))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if offered.ID != older.ID {
		t.Fatalf("offer went to %s, want oldest entry %s", offered.PatientName, older.PatientName)
	}
}

func TestCompatibility(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	desired := Window{Start: clk.Now().Add(24 * time.Hour), End: clk.Now().Add(48 * time.Hour)}
	picky, err := wl.Add(ctx, WaitlistRequest{PatientName: "Picky", Provider: "Dr. Patel", Desired: desired})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Wrong provider.
	offered, err := wl.OnSlotReleased(ctx, "Dr. Johnson", NewWindow(desired.Start, 30*time.Minute))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if offered != nil {
		t.Fatal("entry matched a slot with the wrong provider")
	}

	// Right provider, outside the desired range.
	offered, err = wl.OnSlotReleased(ctx, "Dr. Patel", window(clk, 72))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if offered != nil {
		t.Fatal("entry matched a slot outside its desired range")
	}

	// Both constraints satisfied.
	offered, err = wl.OnSlotReleased(ctx, "Dr. Patel", NewWindow(desired.Start.Add(time.Hour), 30*time.Minute))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if offered == nil || offered.ID != picky.ID {
		t.Fatalf("offered = %v, want entry %s", offered, picky.ID)
	}
}

func TestOneOfferPerWindow(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	first, err := wl.Add(ctx, WaitlistRequest{PatientName: "Maria Garcia"})
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	clk.Advance(time.Minute)
	second, err := wl.Add(ctx, WaitlistRequest{PatientName: "James Lee"})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}

	released := window(clk, 26)
	offered, err := wl.OnSlotReleased(ctx, "Dr. Johnson", released)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if offered == nil || offered.ID != first.ID {
		t.Fatalf("offered = %v, want first entry", offered)
	}

	// The window backs a live offer now; releasing it again must not promise
	// it to a second patient.
	again, err := wl.OnSlotReleased(ctx, "Dr. Johnson", released)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if again != nil {
		t.Fatalf("window under a live offer was offered again to %s", again.PatientName)
	}

	// The targeted re-match path is held to the same rule.
	reoffered, err := wl.TryOffer(ctx, second.ID, "Dr. Johnson", released)
	if err != nil {
		t.Fatalf("try offer: %v", err)
	}
	if reoffered != nil {
		t.Fatal("TryOffer handed out a window under a live offer")
	}
	got, err := wl.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != WaitlistWaiting {
		t.Fatalf("second entry status = %s, want waiting", got.Status)
	}

	// Once the first offer expires the window is up for grabs again.
	clk.Advance(2*time.Hour + time.Minute)
	reoffered, err = wl.TryOffer(ctx, second.ID, "Dr. Johnson", released)
	if err != nil {
		t.Fatalf("try offer after expiry: %v", err)
	}
	if reoffered == nil || reoffered.ID != second.ID {
		t.Fatalf("offered = %v, want second entry after the first offer lapsed", reoffered)
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	entry, err := wl.Add(ctx, WaitlistRequest{PatientName: "Maria Garcia"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wl.OnSlotReleased(ctx, "Dr. Smith", window(clk, 26)); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Not yet expired: nothing to requeue.
	requeued, err := wl.SweepExpired(ctx, clk.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(requeued) != 0 {
		t.Fatalf("requeued %d entries before expiry, want 0", len(requeued))
	}

	requeued, err = wl.SweepExpired(ctx, clk.Now().Add(3*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(requeued) != 1 || requeued[0].ID != entry.ID {
		t.Fatalf("requeued = %v, want entry %s", requeued, entry.ID)
	}
	if requeued[0].Status != WaitlistWaiting {
		t.Fatalf("status = %s, want waiting", requeued[0].Status)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	wl, clk := newTestWaitlist(t)
	ctx := context.Background()

	entry, err := wl.Add(ctx, WaitlistRequest{PatientName: "Maria Garcia"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	removed, err := wl.Remove(ctx, entry.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != WaitlistRemoved {
		t.Fatalf("status = %s, want removed", removed.Status)
	}

	// A claimed entry is part of a booking and cannot be removed.
	claimedEntry, err := wl.Add(ctx, WaitlistRequest{PatientName: "James Lee"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wl.OnSlotReleased(ctx, "Dr. Smith", window(clk, 26)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := wl.Claim(ctx, claimedEntry.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := wl.Remove(ctx, claimedEntry.ID); !errors.Is(err, ErrEntryClaimed) {
		t.Fatalf("remove claimed error = %v, want ErrEntryClaimed", err)
	}
}
