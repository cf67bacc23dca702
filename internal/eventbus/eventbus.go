// Package eventbus publishes best-effort JSON events to NATS for downstream
// collaborators (a WIDS sensor, a dashboard) that want to react to a corpus
// finalize without the core depending on them.
package eventbus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/internal/config"
)

// Bus wraps an optional NATS connection. The zero value (and a Bus returned
// for a disabled config) is safe to call Publish/Close on: every method is a
// no-op, so callers never need to branch on whether events are enabled.
type Bus struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// Connect opens a NATS connection per cfg. If cfg.URL is empty, it returns a
// Bus with no underlying connection rather than an error.
func Connect(cfg config.NATSConfig, log zerolog.Logger) (*Bus, error) {
	if cfg.URL == "" {
		return &Bus{log: log}, nil
	}

	opts := []nats.Option{nats.Name(cfg.ClientID)}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectInterval > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectInterval))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &Bus{nc: nc, log: log}, nil
}

// Publish marshals v as JSON and publishes it on subject. Failure (including
// having no connection at all) is logged at WARN and never returned: event
// delivery is best-effort and must never fail the caller's own work.
func (b *Bus) Publish(subject string, v interface{}) {
	if b == nil || b.nc == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("failed to marshal event")
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}

// Close releases the underlying connection, if any.
func (b *Bus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}
