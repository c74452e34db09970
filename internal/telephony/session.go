package telephony

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/clock"
)

var ErrSessionNotFound = errors.New("call session not found")

type State string

const (
	StateIdle               State = "idle"
	StateDialing            State = "dialing"
	StateBridged            State = "bridged"
	StateCompleted          State = "completed"
	StateNoAnswer           State = "no-answer"
	StateVoicemailRecording State = "voicemail-recording"
	StateVoicemailSaved     State = "voicemail-saved"
)

// Signal is a status event from the telephony provider for one session.
type Signal string

const (
	SignalAnswered  Signal = "answered"
	SignalNoAnswer  Signal = "no-answer"
	SignalBusy      Signal = "busy"
	SignalFailed    Signal = "failed"
	SignalCompleted Signal = "completed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateVoicemailSaved
}

// Session tracks one live-transfer attempt from the AI-answered caller leg
// to a human staff line.
type Session struct {
	ID           uuid.UUID
	Caller       string
	Line         calendar.LineClass
	Target       string
	State        State
	StartedAt    time.Time
	BridgedAt    time.Time
	NoAnswerAt   time.Time
	RecordingAt  time.Time
	EndedAt      time.Time
	BridgedFor   time.Duration
	RecordingRef string

	// Deadline after which an unanswered dial is treated as no-answer.
	DialDeadline time.Time
}

// Dialer is the abstract outbound telephony leg. Failures are downstream
// problems: logged, never fatal to the transfer flow (the caller falls
// through to voicemail).
type Dialer interface {
	Dial(ctx context.Context, sessionID uuid.UUID, target string) error
	BeginRecording(ctx context.Context, sessionID uuid.UUID) error
}

// Registry holds all call sessions behind a single mutex. Sessions are
// independent; the registry is the only shared state between them. All
// dialer calls happen outside the lock.
type Registry struct {
	mu          sync.Mutex
	sessions    map[uuid.UUID]*Session
	dialer      Dialer
	clk         clock.Clock
	ringTimeout time.Duration
	log         zerolog.Logger
}

func NewRegistry(dialer Dialer, clk clock.Clock, ringTimeout time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		sessions:    map[uuid.UUID]*Session{},
		dialer:      dialer,
		clk:         clk,
		ringTimeout: ringTimeout,
		log:         log.With().Str("component", "telephony").Logger(),
	}
}

// StartTransfer creates a session and dials the staff target. The session
// moves Idle -> Dialing immediately; a dial failure is treated like a failed
// leg and routes the caller to voicemail.
func (r *Registry) StartTransfer(ctx context.Context, caller string, line calendar.LineClass, target string) (Session, error) {
	now := r.clk.Now()
	sess := &Session{
		ID:           uuid.New(),
		Caller:       caller,
		Line:         line,
		Target:       target,
		State:        StateDialing,
		StartedAt:    now,
		DialDeadline: now.Add(r.ringTimeout),
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.log.Info().
		Str("session_id", sess.ID.String()).
		Str("line", string(line)).
		Str("caller", caller).
		Msg("transfer dialing")

	if err := r.dialer.Dial(ctx, sess.ID, target); err != nil {
		r.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("agent dial failed")
		return r.signalLocked(ctx, sess.ID, SignalFailed)
	}

	return r.snapshot(sess.ID)
}

// ReportStatus applies a provider status signal. Signals for terminal
// sessions and signals incompatible with the current state are logged and
// ignored; late callbacks must never re-transition a finished call.
func (r *Registry) ReportStatus(ctx context.Context, id uuid.UUID, sig Signal) (Session, error) {
	return r.signalLocked(ctx, id, sig)
}

func (r *Registry) signalLocked(ctx context.Context, id uuid.UUID, sig Signal) (Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}

	startRecording := false
	now := r.clk.Now()

	switch {
	case sess.State.Terminal():
		r.log.Debug().
			Str("session_id", id.String()).
			Str("state", string(sess.State)).
			Str("signal", string(sig)).
			Msg("ignoring signal for terminal session")

	case sess.State == StateDialing && sig == SignalAnswered:
		sess.State = StateBridged
		sess.BridgedAt = now
		r.log.Info().Str("session_id", id.String()).Msg("caller bridged to agent")

	case sess.State == StateDialing && (sig == SignalNoAnswer || sig == SignalBusy || sig == SignalFailed):
		toVoicemail(sess, now)
		startRecording = true
		r.log.Info().
			Str("session_id", id.String()).
			Str("signal", string(sig)).
			Msg("agent unavailable, routing caller to voicemail")

	case sess.State == StateBridged && sig == SignalCompleted:
		sess.State = StateCompleted
		sess.EndedAt = now
		sess.BridgedFor = now.Sub(sess.BridgedAt)
		r.log.Info().
			Str("session_id", id.String()).
			Dur("bridged_for", sess.BridgedFor).
			Msg("transfer completed")

	default:
		r.log.Warn().
			Str("session_id", id.String()).
			Str("state", string(sess.State)).
			Str("signal", string(sig)).
			Msg("ignoring signal incompatible with session state")
	}

	snap := *sess
	r.mu.Unlock()

	if startRecording {
		r.beginRecording(ctx, id)
	}
	return snap, nil
}

func toVoicemail(sess *Session, now time.Time) {
	sess.State = StateNoAnswer
	sess.NoAnswerAt = now
	// No-answer immediately rolls into voicemail recording.
	sess.State = StateVoicemailRecording
	sess.RecordingAt = now
}

func (r *Registry) beginRecording(ctx context.Context, id uuid.UUID) {
	if err := r.dialer.BeginRecording(ctx, id); err != nil {
		r.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to start voicemail recording")
	}
}

// ReportRecordingComplete stores the recording reference and finishes the
// session.
func (r *Registry) ReportRecordingComplete(ctx context.Context, id uuid.UUID, recordingRef string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	switch {
	case sess.State.Terminal():
		r.log.Debug().
			Str("session_id", id.String()).
			Str("state", string(sess.State)).
			Msg("ignoring recording for terminal session")

	case sess.State == StateVoicemailRecording:
		now := r.clk.Now()
		sess.State = StateVoicemailSaved
		sess.RecordingRef = recordingRef
		sess.EndedAt = now
		r.log.Info().
			Str("session_id", id.String()).
			Str("recording_ref", recordingRef).
			Msg("voicemail saved")

	default:
		r.log.Warn().
			Str("session_id", id.String()).
			Str("state", string(sess.State)).
			Msg("ignoring recording for session not recording")
	}

	return *sess, nil
}

// SweepRingTimeouts transitions dialing sessions whose ring deadline has
// passed without an answer signal. It is the timeout half of the
// Dialing -> NoAnswer edge; provider signals are the other half, and
// whichever arrives first wins.
func (r *Registry) SweepRingTimeouts(ctx context.Context, now time.Time) []Session {
	r.mu.Lock()
	var timedOut []Session
	for _, sess := range r.sessions {
		if sess.State == StateDialing && now.After(sess.DialDeadline) {
			toVoicemail(sess, now)
			timedOut = append(timedOut, *sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range timedOut {
		r.log.Info().Str("session_id", sess.ID.String()).Msg("ring timeout, routing caller to voicemail")
		r.beginRecording(ctx, sess.ID)
	}
	return timedOut
}

func (r *Registry) Get(id uuid.UUID) (Session, error) {
	return r.snapshot(id)
}

func (r *Registry) snapshot(id uuid.UUID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}
