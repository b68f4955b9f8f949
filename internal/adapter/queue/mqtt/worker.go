package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eclipse/paho.golang/paho"

	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/domain"
)

// Admission gates job starts on local resource availability. Acquire
// fails with an error wrapping ErrResourceUnavailable when no slot is
// free or CPU/memory pressure is too high; the returned release must
// be called when the job finishes.
type Admission interface {
	Acquire(ctx context.Context, vendor domain.Vendor, jobID string) (release func(), err error)
}

// RunnerConfig shapes one worker process.
type RunnerConfig struct {
	Addr     string
	WorkerID string
	// Group names the shared subscription; all members split the queue
	// stream between them.
	Group string
	// Vendor, when set, pins the worker to a single vendor queue.
	Vendor     domain.Vendor
	QoS        byte
	JobTimeout time.Duration
}

// Runner is the worker runtime: it consumes the vendor queues through
// a shared subscription, admits jobs against local resources, executes
// the registered handler, and routes failures through the retry
// manager. Messages are acked only once their disposition is settled,
// so a crashed worker's in-flight jobs are redelivered.
type Runner struct {
	cfg       RunnerConfig
	topics    Topics
	registry  *domain.Registry
	admission Admission
	activity  *observability.ActivityLog
	log       *slog.Logger
}

// NewRunner wires a worker runtime.
func NewRunner(cfg RunnerConfig, topics Topics, registry *domain.Registry, admission Admission, activity *observability.ActivityLog, log *slog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		topics:    topics,
		registry:  registry,
		admission: admission,
		activity:  activity,
		log:       log.With(slog.String("worker_id", cfg.WorkerID)),
	}
}

// Run consumes jobs until ctx is cancelled, redialing the broker every
// five seconds after a lost session. The persistent session keeps
// unacked and queued jobs waiting across reconnects.
func (r *Runner) Run(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(reconnectInterval), ctx)
	return backoff.Retry(func() error {
		err := r.session(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("worker session ended", slog.Any("error", err))
		}
		return err
	}, bo)
}

func (r *Runner) session(ctx context.Context) error {
	client, err := Dial(ctx, Options{
		Addr:       r.cfg.Addr,
		ClientID:   r.cfg.WorkerID,
		Session:    SessionPersistent,
		ManualAcks: true,
		Will:       OfflineWill(r.topics, r.cfg.WorkerID),
		Logger:     r.log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect() }()

	if err := client.PublishStatus(ctx, r.topics.Status(), "online"); err != nil {
		r.log.Warn("status publish failed", slog.Any("error", err))
	}

	filter := r.topics.SharedQueue(r.cfg.Group)
	if r.cfg.Vendor != "" {
		filter = r.topics.SharedQueueVendor(r.cfg.Group, r.cfg.Vendor)
	}
	if err := client.Subscribe(ctx, r.cfg.QoS, filter); err != nil {
		return err
	}
	r.log.Info("worker consuming", slog.String("filter", filter))

	rm := NewRetryManager(client, r.topics, r.cfg.QoS, r.log)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case <-client.Done():
			return fmt.Errorf("worker session lost")
		case pb := <-client.Messages():
			wg.Add(1)
			go func(pb *paho.Publish) {
				defer wg.Done()
				r.dispatch(ctx, client, rm, pb)
			}(pb)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, client *Client, rm *RetryManager, pb *paho.Publish) {
	vendor, err := VendorFromTopic(pb.Topic)
	if err != nil {
		r.log.Warn("message on unknown vendor topic dropped",
			slog.String("topic", pb.Topic), slog.Any("error", err))
		_ = client.Ack(pb)
		return
	}
	msg, err := domain.DecodeJobMessage(pb.Payload)
	if err != nil {
		r.log.Warn("malformed job message dropped",
			slog.String("topic", pb.Topic), slog.Any("error", err))
		_ = client.Ack(pb)
		return
	}
	if r.process(ctx, rm, vendor, msg) {
		_ = client.Ack(pb)
	}
}

// process executes one job end to end and reports whether the message
// should be acknowledged. False leaves the message unacked so the
// broker redelivers it, which is how admission rejection sheds load
// without losing work.
func (r *Runner) process(ctx context.Context, rm *RetryManager, vendor domain.Vendor, msg domain.JobMessage) bool {
	log := r.log.With(slog.String("job_id", msg.JobID), slog.String("vendor", string(vendor)))

	factory, ok := r.registry.Resolve(vendor)
	if !ok {
		log.Warn("no handler registered, dropping job")
		return true
	}

	release, err := r.admission.Acquire(ctx, vendor, msg.JobID)
	if err != nil {
		log.Warn("admission rejected, leaving job for redelivery", slog.Any("error", err))
		return false
	}
	defer release()

	observability.JobsActive.Inc()
	defer observability.JobsActive.Dec()
	observability.JobsReceivedTotal.WithLabelValues(string(vendor)).Inc()
	r.activity.Received(vendor, msg.JobID)
	log.Info("job started", slog.Int("retry_count", msg.RetryCount))

	jctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	succeeded, jobErr := r.runHandler(jctx, factory, msg)
	if !succeeded && jobErr == nil {
		jobErr = errors.New("handler reported failure")
	}

	if jobErr != nil {
		if kind, _ := domain.Classify(jobErr); kind == domain.ErrorTransient {
			// One in-place retry, no envelope mutation: a success here
			// leaves no trace in the retry metadata.
			log.Info("transient failure, retrying in place", slog.Any("error", jobErr))
			succeeded, jobErr = r.runHandler(jctx, factory, msg)
			if !succeeded && jobErr == nil {
				jobErr = errors.New("handler reported failure")
			}
		}
	}

	if jobErr == nil {
		observability.JobsCompletedTotal.WithLabelValues(string(vendor)).Inc()
		r.activity.Completed(vendor, msg.JobID)
		log.Info("job completed")
		return true
	}

	_, code := domain.Classify(jobErr)
	observability.JobsFailedTotal.WithLabelValues(string(vendor)).Inc()
	r.activity.Failed(vendor, msg.JobID, code)

	action, err := rm.HandleFailure(ctx, vendor, msg, jobErr)
	if err != nil {
		// Publish failed; keep the original message unacked so no job
		// is lost between queue and DLQ.
		log.Error("failure handling did not complete", slog.Any("error", err))
		return false
	}
	switch action {
	case ActionRequeued:
		observability.JobsRequeuedTotal.WithLabelValues(string(vendor)).Inc()
	case ActionDeadLettered:
		observability.JobsDeadLetteredTotal.WithLabelValues(string(vendor)).Inc()
		r.activity.DeadLettered(vendor, msg.JobID)
	}
	return true
}

// runHandler drives one handler attempt through its lifecycle.
// Teardown always runs, even when Setup fails partway.
func (r *Runner) runHandler(ctx context.Context, factory domain.HandlerFactory, msg domain.JobMessage) (succeeded bool, err error) {
	h := factory(msg.JobID, msg.Payload)
	defer h.Teardown(ctx)
	if err := h.Setup(ctx); err != nil {
		return false, fmt.Errorf("handler setup: %w", err)
	}
	return h.Run(ctx)
}
