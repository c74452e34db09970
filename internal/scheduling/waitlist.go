package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/clock"
)

var (
	ErrExpiredOffer = errors.New("waitlist offer is expired or was never made")
	ErrEntryClaimed = errors.New("waitlist entry is already claimed")
)

type WaitlistRequest struct {
	PatientName  string
	PatientDOB   string
	PatientPhone string
	Provider     string // empty = any provider
	Desired      Window // zero = any time
	Type         string
	Notes        string
}

// Waitlist holds pending entries and matches them against released slots.
// Offer decisions are serialized by a single mutex so a released window is
// offered to at most one entry.
type Waitlist struct {
	mu       sync.Mutex
	repo     WaitlistRepo
	clk      clock.Clock
	offerTTL time.Duration
	log      zerolog.Logger
}

func NewWaitlist(repo WaitlistRepo, clk clock.Clock, offerTTL time.Duration, log zerolog.Logger) *Waitlist {
	return &Waitlist{
		repo:     repo,
		clk:      clk,
		offerTTL: offerTTL,
		log:      log.With().Str("component", "waitlist").Logger(),
	}
}

func (w *Waitlist) Add(ctx context.Context, req WaitlistRequest) (*WaitlistEntry, error) {
	now := w.clk.Now()
	entry := &WaitlistEntry{
		ID:           uuid.New(),
		PatientName:  req.PatientName,
		PatientDOB:   req.PatientDOB,
		PatientPhone: req.PatientPhone,
		Provider:     req.Provider,
		Desired:      req.Desired,
		Type:         req.Type,
		Notes:        req.Notes,
		Status:       WaitlistWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := w.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}
	return entry, nil
}

// OnSlotReleased offers a freed window to the oldest compatible waiting
// entry. Returns nil when no entry matches; the slot then simply stays open
// for direct booking. The caller sends the offer notification after this
// returns, so no lock is held during I/O.
func (w *Waitlist) OnSlotReleased(ctx context.Context, provider string, window Window) (*WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	held, err := w.offerHeldLocked(ctx, provider, window)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, nil
	}

	waiting, err := w.repo.ListByStatus(ctx, WaitlistWaiting)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}

	for i := range waiting {
		entry := &waiting[i]
		if !w.compatible(entry, provider, window) {
			continue
		}
		if err := w.offerLocked(ctx, entry, provider, window); err != nil {
			return nil, err
		}
		return entry, nil
	}
	return nil, nil
}

// TryOffer offers a specific open slot to a specific waiting entry. Used by
// the expiry sweep to re-enter requeued entries into matching.
func (w *Waitlist) TryOffer(ctx context.Context, entryID uuid.UUID, provider string, window Window) (*WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != WaitlistWaiting || !w.compatible(entry, provider, window) {
		return nil, nil
	}
	held, err := w.offerHeldLocked(ctx, provider, window)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, nil
	}
	if err := w.offerLocked(ctx, entry, provider, window); err != nil {
		return nil, err
	}
	return entry, nil
}

// offerHeldLocked reports whether a live, unexpired offer already covers the
// window. A window backs at most one outstanding offer at a time, so a second
// entry never gets promised a slot another patient can still claim.
func (w *Waitlist) offerHeldLocked(ctx context.Context, provider string, window Window) (bool, error) {
	offered, err := w.repo.ListByStatus(ctx, WaitlistOffered)
	if err != nil {
		return false, fmt.Errorf("list offered entries: %w", err)
	}
	now := w.clk.Now()
	for i := range offered {
		e := &offered[i]
		if e.OfferExpiresAt != nil && !now.Before(*e.OfferExpiresAt) {
			continue
		}
		if e.OfferedProvider == provider && e.OfferedWindow.Overlaps(window) {
			return true, nil
		}
	}
	return false, nil
}

func (w *Waitlist) compatible(entry *WaitlistEntry, provider string, window Window) bool {
	if entry.Provider != "" && entry.Provider != provider {
		return false
	}
	if !entry.Desired.IsZero() && !entry.Desired.Contains(window) {
		return false
	}
	return true
}

func (w *Waitlist) offerLocked(ctx context.Context, entry *WaitlistEntry, provider string, window Window) error {
	now := w.clk.Now()
	expires := now.Add(w.offerTTL)
	entry.Status = WaitlistOffered
	entry.OfferedProvider = provider
	entry.OfferedWindow = window
	entry.OfferExpiresAt = &expires
	entry.UpdatedAt = now
	if err := w.repo.Update(ctx, entry); err != nil {
		return fmt.Errorf("offer entry: %w", err)
	}

	w.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("provider", provider).
		Time("start", window.Start).
		Time("expires_at", expires).
		Msg("waitlist offer made")
	return nil
}

// Claim accepts an offer. A stale claim (past expiry or not currently
// offered) fails with ErrExpiredOffer; a stale offered entry is requeued to
// waiting as a side effect so it re-enters the matching pool.
func (w *Waitlist) Claim(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != WaitlistOffered {
		return nil, ErrExpiredOffer
	}
	now := w.clk.Now()
	if entry.OfferExpiresAt == nil || !now.Before(*entry.OfferExpiresAt) {
		w.requeueLocked(ctx, entry, now)
		return nil, ErrExpiredOffer
	}

	entry.Status = WaitlistClaimed
	entry.OfferExpiresAt = nil
	entry.UpdatedAt = now
	if err := w.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("claim entry: %w", err)
	}
	return entry, nil
}

// Reopen puts an entry back into the waiting pool. Used when booking after a
// claim fails because the window was consumed in the meantime.
func (w *Waitlist) Reopen(ctx context.Context, id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status == WaitlistRemoved {
		return nil
	}
	w.requeueLocked(ctx, entry, w.clk.Now())
	return nil
}

// SweepExpired moves every offered entry past its expiry back to waiting and
// returns the requeued entries so the caller can re-match them against slots
// still open.
func (w *Waitlist) SweepExpired(ctx context.Context, now time.Time) ([]WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offered, err := w.repo.ListByStatus(ctx, WaitlistOffered)
	if err != nil {
		return nil, fmt.Errorf("list offered entries: %w", err)
	}

	var requeued []WaitlistEntry
	for i := range offered {
		entry := &offered[i]
		if entry.OfferExpiresAt != nil && now.Before(*entry.OfferExpiresAt) {
			continue
		}
		w.requeueLocked(ctx, entry, now)
		requeued = append(requeued, *entry)
	}
	return requeued, nil
}

func (w *Waitlist) requeueLocked(ctx context.Context, entry *WaitlistEntry, now time.Time) {
	entry.Status = WaitlistWaiting
	entry.OfferedProvider = ""
	entry.OfferedWindow = Window{}
	entry.OfferExpiresAt = nil
	entry.UpdatedAt = now
	if err := w.repo.Update(ctx, entry); err != nil {
		w.log.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("failed to requeue entry")
		return
	}
	w.log.Info().Str("entry_id", entry.ID.String()).Msg("waitlist entry back to waiting")
}

// Remove takes an entry out of the pool from any state except claimed.
func (w *Waitlist) Remove(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == WaitlistClaimed {
		return nil, ErrEntryClaimed
	}

	entry.Status = WaitlistRemoved
	entry.OfferedProvider = ""
	entry.OfferedWindow = Window{}
	entry.OfferExpiresAt = nil
	entry.UpdatedAt = w.clk.Now()
	if err := w.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("remove entry: %w", err)
	}
	return entry, nil
}

func (w *Waitlist) Get(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	return w.repo.GetByID(ctx, id)
}
