package dispatch

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LoggingPublisher is used when no broker is configured.
type LoggingPublisher struct{}

func NewLoggingPublisher() *LoggingPublisher { return &LoggingPublisher{} }

func (p *LoggingPublisher) Publish(_ context.Context, batch []Fact) error {
	for _, f := range batch {
		log.Info().
			Str("module", "dispatch").
			Str("fact_type", f.Type).
			Str("key", f.Key).
			Time("at", f.At).
			Msg("fact published")
	}
	return nil
}

func (p *LoggingPublisher) Close() error { return nil }
