package telephony

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// logDialer stands in for a real telephony provider: it records the intent
// and always succeeds. Production swaps in a provider-backed Dialer without
// touching the state machine.
type logDialer struct {
	log zerolog.Logger
}

func NewLogDialer(log zerolog.Logger) Dialer {
	return &logDialer{log: log.With().Str("component", "dialer").Logger()}
}

func (d *logDialer) Dial(ctx context.Context, sessionID uuid.UUID, target string) error {
	d.log.Info().
		Str("session_id", sessionID.String()).
		Str("target", target).
		Msg("dialing agent leg")
	return nil
}

func (d *logDialer) BeginRecording(ctx context.Context, sessionID uuid.UUID) error {
	d.log.Info().
		Str("session_id", sessionID.String()).
		Msg("starting voicemail recording on caller leg")
	return nil
}
