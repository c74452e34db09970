package notify

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers an outbound patient notification (SMS in production).
// Fire-and-forget from the orchestrator's point of view: a failed send is
// logged by the caller and never rolls back the operation that triggered it.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

type logSender struct {
	log zerolog.Logger
}

// NewLogSender returns a Sender that only logs. Production wires a real
// SMS gateway behind the same interface.
func NewLogSender(log zerolog.Logger) Sender {
	return &logSender{log: log.With().Str("component", "notify").Logger()}
}

func (s *logSender) Send(ctx context.Context, recipient, body string) error {
	s.log.Info().
		Str("recipient", recipient).
		Int("chars", len(body)).
		Msg("notification sent")
	return nil
}

type rateLimited struct {
	inner Sender
	lim   *rate.Limiter
}

// NewRateLimited caps outbound sends at perMinute, smoothing reminder-job
// bursts so the SMS gateway is never flooded.
func NewRateLimited(inner Sender, perMinute int) Sender {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &rateLimited{
		inner: inner,
		lim:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

func (s *rateLimited) Send(ctx context.Context, recipient, body string) error {
	if err := s.lim.Wait(ctx); err != nil {
		return err
	}
	return s.inner.Send(ctx, recipient, body)
}
