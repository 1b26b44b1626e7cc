// Package notify broadcasts ledger transitions over redis pub/sub so
// dashboards can refresh without polling.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andres-saa/restaurant-reports/internal/appeals"
)

// Channel is the pub/sub channel ledger events go out on.
const Channel = "reports:appeals"

const publishTimeout = 2 * time.Second

// Publisher sends events fire-and-forget: failures are logged and never
// surface to the operation that triggered them.
type Publisher struct {
	rdb     redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewPublisher constructs a publisher on the default channel.
func NewPublisher(rdb redis.UniversalClient, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{rdb: rdb, channel: Channel, logger: logger}
}

// Publish encodes the event and hands delivery to a background goroutine, so
// a slow or stalled broker never holds up the ledger operation. The calling
// context's cancellation is deliberately not inherited so an aborted request
// still announces completed work; a short timeout bounds the attempt.
func (p *Publisher) Publish(_ context.Context, event appeals.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("notify encode failed", "type", event.Type, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			p.logger.Warn("notify publish failed", "type", event.Type, "code", event.Code, "error", err)
		}
	}()
}
