package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// BrokerStats is a snapshot of the broker-maintained counters. A value
// of -1 means the broker has not reported that counter yet (or $SYS is
// disabled).
type BrokerStats struct {
	StoredMessages   int64 `json:"stored_messages"`
	ConnectedClients int64 `json:"connected_clients"`
}

// StatsClient watches the $SYS tree with an ephemeral session and
// caches the latest counter values for the metrics collector.
type StatsClient struct {
	addr string
	log  *slog.Logger

	mu        sync.RWMutex
	stats     BrokerStats
	connected bool
}

// NewStatsClient builds a stats watcher for the given broker.
func NewStatsClient(addr string, log *slog.Logger) *StatsClient {
	return &StatsClient{
		addr:  addr,
		log:   log.With(slog.String("component", "stats_client")),
		stats: BrokerStats{StoredMessages: -1, ConnectedClients: -1},
	}
}

// Run watches $SYS until ctx is cancelled, redialing every five
// seconds after a lost session. Counters reset to the -1 sentinel
// while disconnected.
func (s *StatsClient) Run(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(reconnectInterval), ctx)
	return backoff.Retry(func() error {
		err := s.watch(ctx)
		s.markDisconnected()
		if err != nil {
			s.log.Warn("stats session ended", slog.Any("error", err))
		}
		return err
	}, bo)
}

func (s *StatsClient) watch(ctx context.Context) error {
	client, err := Dial(ctx, Options{
		Addr:     s.addr,
		ClientID: "stats-" + uuid.NewString()[:8],
		Session:  SessionEphemeral,
		Logger:   s.log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect() }()

	if err := client.Subscribe(ctx, 0, SysStoredMessages, SysConnectedClients); err != nil {
		return err
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case <-client.Done():
			return fmt.Errorf("stats session lost")
		case pb := <-client.Messages():
			s.handle(pb.Topic, pb.Payload)
		}
	}
}

// handle updates the cached counter for one $SYS message. Values that
// do not parse as integers are ignored.
func (s *StatsClient) handle(topic string, payload []byte) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 10, 64)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch topic {
	case SysStoredMessages:
		s.stats.StoredMessages = v
	case SysConnectedClients:
		s.stats.ConnectedClients = v
	}
}

func (s *StatsClient) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.stats = BrokerStats{StoredMessages: -1, ConnectedClients: -1}
}

// Stats returns the latest counters, -1 sentinels when unknown.
func (s *StatsClient) Stats() BrokerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// BrokerHealthy reports whether the $SYS session is live.
func (s *StatsClient) BrokerHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
