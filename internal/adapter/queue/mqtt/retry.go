package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// Publisher abstracts the broker session for components that only
// publish. *Client satisfies it; tests use fakes.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
}

// PublishFunc adapts a function to the Publisher interface.
type PublishFunc func(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error

func (f PublishFunc) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	return f(ctx, topic, qos, retain, payload)
}

// RetryAction is the disposition chosen for a failed job.
type RetryAction string

const (
	ActionRequeued     RetryAction = "requeued"
	ActionDeadLettered RetryAction = "dead_lettered"
)

// RetryManager applies the multi-tier retry policy: permanent failures
// and exhausted budgets go to the vendor DLQ, everything else is
// republished to the vendor queue with exponential backoff. Immediate
// in-place retries for transient errors happen upstream in the worker
// loop and never reach this type.
type RetryManager struct {
	pub    Publisher
	topics Topics
	qos    byte
	log    *slog.Logger
	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryManager wires a retry manager over the given publisher.
func NewRetryManager(pub Publisher, topics Topics, qos byte, log *slog.Logger) *RetryManager {
	return &RetryManager{
		pub:    pub,
		topics: topics,
		qos:    qos,
		log:    log,
		sleep:  sleepCtx,
	}
}

// HandleFailure classifies the error, appends it to the envelope's
// history, and either requeues the job with backoff or dead-letters
// it. The returned action tells the caller which path was taken.
func (r *RetryManager) HandleFailure(ctx context.Context, vendor domain.Vendor, msg domain.JobMessage, jobErr error) (RetryAction, error) {
	kind, code := domain.Classify(jobErr)
	msg.AddError(domain.NewErrorDetail(jobErr, kind, code))

	log := r.log.With(
		slog.String("job_id", msg.JobID),
		slog.String("vendor", string(vendor)),
		slog.String("error_type", string(kind)),
		slog.String("error_code", code),
		slog.Int("retry_count", msg.RetryCount),
	)

	if kind == domain.ErrorPermanent || msg.MaxRetriesExceeded() {
		if err := r.SendToDLQ(ctx, vendor, msg); err != nil {
			return ActionDeadLettered, err
		}
		log.Warn("job dead lettered", slog.Int("max_retries", msg.MaxRetries))
		return ActionDeadLettered, nil
	}

	msg.IncrementRetry()
	delay := BackoffDelay(msg.RetryCount)
	if err := r.RequeueWithDelay(ctx, vendor, msg, delay); err != nil {
		return ActionRequeued, err
	}
	log.Info("job requeued", slog.Duration("delay", delay))
	return ActionRequeued, nil
}

// BackoffDelay returns the wait before republishing a job on its nth
// retry (1-based after the increment): 2s, 4s, 8s, ...
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 10 {
		retryCount = 10
	}
	return time.Duration(1<<uint(retryCount)) * time.Second
}

// RequeueWithDelay waits out the backoff and republishes the envelope
// to its vendor queue. The wait respects ctx so shutdown is not held
// hostage by a long backoff.
func (r *RetryManager) RequeueWithDelay(ctx context.Context, vendor domain.Vendor, msg domain.JobMessage, delay time.Duration) error {
	if err := r.sleep(ctx, delay); err != nil {
		return fmt.Errorf("requeue %s aborted: %w", msg.JobID, err)
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := r.pub.Publish(ctx, r.topics.Queue(vendor), r.qos, false, payload); err != nil {
		return fmt.Errorf("requeue %s: %w", msg.JobID, err)
	}
	return nil
}

// SendToDLQ publishes the envelope to the vendor's dead-letter topic.
func (r *RetryManager) SendToDLQ(ctx context.Context, vendor domain.Vendor, msg domain.JobMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := r.pub.Publish(ctx, r.topics.DLQ(vendor), r.qos, false, payload); err != nil {
		return fmt.Errorf("dead letter %s: %w", msg.JobID, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
