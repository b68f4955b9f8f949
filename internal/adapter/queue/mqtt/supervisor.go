package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// Supervisor keeps one publisher session alive across broker restarts,
// redialing every five seconds. Publishes issued while the session is
// down fail fast with ErrNotConnected; the ingress maps that to 503
// rather than queueing requests in memory.
type Supervisor struct {
	opts   Options
	topics Topics
	log    *slog.Logger

	mu  sync.RWMutex
	cur *Client
}

// NewSupervisor builds a supervisor for the given session options.
func NewSupervisor(opts Options, topics Topics) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{opts: opts, topics: topics, log: opts.Logger}
}

// Run dials and babysits the session until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(reconnectInterval), ctx)
	return backoff.Retry(func() error {
		client, err := Dial(ctx, s.opts)
		if err != nil {
			s.log.Warn("publisher dial failed", slog.Any("error", err))
			return err
		}
		if err := client.PublishStatus(ctx, s.topics.Status(), "online"); err != nil {
			s.log.Warn("status publish failed", slog.Any("error", err))
		}
		s.setCurrent(client)

		select {
		case <-ctx.Done():
			s.setCurrent(nil)
			_ = client.PublishStatus(context.WithoutCancel(ctx), s.topics.Status(), "offline")
			_ = client.Disconnect()
			return backoff.Permanent(ctx.Err())
		case <-client.Done():
			s.setCurrent(nil)
			return fmt.Errorf("publisher session lost")
		}
	}, bo)
}

func (s *Supervisor) setCurrent(c *Client) {
	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()
}

func (s *Supervisor) current() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Publish forwards to the live session, ErrNotConnected while down.
func (s *Supervisor) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	c := s.current()
	if c == nil {
		return domain.ErrNotConnected
	}
	return c.Publish(ctx, topic, qos, retain, payload)
}

// Connected reports whether a session is currently live.
func (s *Supervisor) Connected() bool {
	return s.current() != nil
}

// Ping probes the live session via the heartbeat topic.
func (s *Supervisor) Ping(ctx context.Context) error {
	c := s.current()
	if c == nil {
		return domain.ErrNotConnected
	}
	return c.Ping(ctx, s.topics.Heartbeat())
}
