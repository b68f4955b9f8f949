package mqtt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/domain"
)

// Enqueuer publishes freshly accepted jobs to their vendor queue. It
// is the only write path the HTTP ingress has into the broker.
type Enqueuer struct {
	pub        Publisher
	topics     Topics
	qos        byte
	maxRetries int
	log        *slog.Logger
}

// NewEnqueuer builds an Enqueuer over an established publisher session.
// maxRetries is the budget stamped on every new envelope; values below
// one fall back to the domain default.
func NewEnqueuer(pub Publisher, topics Topics, qos byte, maxRetries int, log *slog.Logger) *Enqueuer {
	if maxRetries < 1 {
		maxRetries = domain.DefaultMaxRetries
	}
	return &Enqueuer{pub: pub, topics: topics, qos: qos, maxRetries: maxRetries, log: log}
}

// Enqueue wraps the payload in a new envelope and publishes it,
// returning the generated job id.
func (e *Enqueuer) Enqueue(ctx context.Context, vendor domain.Vendor, payload map[string]any) (string, error) {
	msg := domain.NewJobMessage(payload)
	msg.MaxRetries = e.maxRetries
	data, err := msg.Encode()
	if err != nil {
		return "", err
	}
	if err := e.pub.Publish(ctx, e.topics.Queue(vendor), e.qos, false, data); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", vendor, err)
	}
	observability.JobsEnqueuedTotal.WithLabelValues(string(vendor)).Inc()
	e.log.Info("job enqueued",
		slog.String("job_id", msg.JobID),
		slog.String("vendor", string(vendor)))
	return msg.JobID, nil
}
