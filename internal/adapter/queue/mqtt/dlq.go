package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

const (
	dlqManagerClientID = "dlq-manager"
	dlqRetryClientID   = "dlq-retry"
	reconnectInterval  = 5 * time.Second
)

// DLQEntry is one dead-lettered job held in memory for inspection.
type DLQEntry struct {
	Vendor     domain.Vendor     `json:"vendor"`
	Message    domain.JobMessage `json:"message"`
	ReceivedAt time.Time         `json:"received_at"`
}

// DLQManager subscribes the dead-letter tree with a persistent session
// and keeps an in-memory index of failed jobs. Persistence means DLQ
// messages published while the manager is down are delivered on
// reconnect, so the index converges to the broker's view.
type DLQManager struct {
	addr   string
	topics Topics
	qos    byte
	log    *slog.Logger

	// republish re-injects a reset envelope into the vendor queue. In
	// production it dials a short-lived session; tests swap in a fake.
	republish Publisher

	mu       sync.RWMutex
	byID     map[string]DLQEntry
	byVendor map[domain.Vendor][]string
}

// NewDLQManager builds a DLQ manager for the given broker.
func NewDLQManager(addr string, topics Topics, qos byte, log *slog.Logger) *DLQManager {
	d := &DLQManager{
		addr:     addr,
		topics:   topics,
		qos:      qos,
		log:      log.With(slog.String("component", "dlq_manager")),
		byID:     make(map[string]DLQEntry),
		byVendor: make(map[domain.Vendor][]string),
	}
	d.republish = PublishFunc(d.publishEphemeral)
	return d
}

// Run consumes the DLQ tree until ctx is cancelled, redialing the
// broker every five seconds after a lost session.
func (d *DLQManager) Run(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(reconnectInterval), ctx)
	return backoff.Retry(func() error {
		if err := d.consume(ctx); err != nil {
			d.log.Warn("dlq session ended", slog.Any("error", err))
			return err
		}
		return nil
	}, bo)
}

func (d *DLQManager) consume(ctx context.Context) error {
	client, err := Dial(ctx, Options{
		Addr:     d.addr,
		ClientID: dlqManagerClientID,
		Session:  SessionPersistent,
		Logger:   d.log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect() }()

	if err := client.Subscribe(ctx, d.qos, d.topics.DLQWildcard()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case <-client.Done():
			return fmt.Errorf("dlq session lost")
		case pb := <-client.Messages():
			d.ingest(pb.Topic, pb.Payload)
		}
	}
}

// ingest indexes one DLQ message. Malformed payloads and unknown
// vendor segments are logged and dropped.
func (d *DLQManager) ingest(topic string, payload []byte) {
	vendor, err := VendorFromTopic(topic)
	if err != nil {
		d.log.Warn("dlq message on unknown vendor topic",
			slog.String("topic", topic), slog.Any("error", err))
		return
	}
	msg, err := domain.DecodeJobMessage(payload)
	if err != nil {
		d.log.Warn("malformed dlq message dropped",
			slog.String("topic", topic), slog.Any("error", err))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.byID[msg.JobID]; !seen {
		d.byVendor[vendor] = append(d.byVendor[vendor], msg.JobID)
	}
	d.byID[msg.JobID] = DLQEntry{Vendor: vendor, Message: msg, ReceivedAt: time.Now().UTC()}
	d.log.Info("job indexed in dlq",
		slog.String("job_id", msg.JobID),
		slog.String("vendor", string(vendor)),
		slog.Int("retry_count", msg.RetryCount))
}

// ListAll returns every indexed entry, newest first.
func (d *DLQManager) ListAll() []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DLQEntry, 0, len(d.byID))
	for _, e := range d.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out
}

// ListByVendor returns the entries for one vendor, newest first.
func (d *DLQManager) ListByVendor(vendor domain.Vendor) []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := d.byVendor[vendor]
	out := make([]DLQEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := d.byID[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out
}

// Counts returns the number of indexed entries per vendor.
func (d *DLQManager) Counts() map[domain.Vendor]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[domain.Vendor]int, len(d.byVendor))
	for v, ids := range d.byVendor {
		out[v] = len(ids)
	}
	return out
}

// Retry re-injects a dead-lettered job into its vendor queue with
// retry state and error history cleared, then drops it from the index.
// Returns domain.ErrNotFound when the job id is not indexed.
func (d *DLQManager) Retry(ctx context.Context, jobID string) (domain.JobMessage, error) {
	d.mu.RLock()
	entry, ok := d.byID[jobID]
	d.mu.RUnlock()
	if !ok {
		return domain.JobMessage{}, fmt.Errorf("dlq job %s: %w", jobID, domain.ErrNotFound)
	}

	fresh := entry.Message.ResetForRetry()
	payload, err := fresh.Encode()
	if err != nil {
		return domain.JobMessage{}, err
	}
	if err := d.republish.Publish(ctx, d.topics.Queue(entry.Vendor), d.qos, false, payload); err != nil {
		return domain.JobMessage{}, fmt.Errorf("retry %s: %w", jobID, err)
	}

	d.remove(entry.Vendor, jobID)
	d.log.Info("dlq job re-injected",
		slog.String("job_id", jobID),
		slog.String("vendor", string(entry.Vendor)))
	return fresh, nil
}

func (d *DLQManager) remove(vendor domain.Vendor, jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byID, jobID)
	ids := d.byVendor[vendor]
	for i, id := range ids {
		if id == jobID {
			d.byVendor[vendor] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// publishEphemeral opens a short-lived clean session just for one
// publish. Re-injection is rare enough that a dedicated connection per
// retry is simpler than keeping a second session alive.
func (d *DLQManager) publishEphemeral(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	client, err := Dial(ctx, Options{
		Addr:     d.addr,
		ClientID: dlqRetryClientID,
		Session:  SessionEphemeral,
		Logger:   d.log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect() }()
	return client.Publish(ctx, topic, qos, retain, payload)
}
