package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// SessionMode selects how the broker treats the client session.
type SessionMode int

const (
	// SessionEphemeral starts clean and leaves nothing behind on
	// disconnect. Used by publishers and the stats client.
	SessionEphemeral SessionMode = iota
	// SessionPersistent keeps the session and its queued QoS 1 messages
	// across disconnects. Used by workers and the DLQ manager.
	SessionPersistent
)

// Messages queued while a worker drains; beyond this the reader blocks
// and the broker stops seeing acks, which is the desired backpressure.
const inboundBuffer = 64

const dialTimeout = 10 * time.Second

// Will describes the last-will message registered at connect time.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Options configures one broker session.
type Options struct {
	Addr      string
	ClientID  string
	Session   SessionMode
	KeepAlive uint16
	Will      *Will
	// ManualAcks defers QoS 1 acknowledgment to the caller via Ack.
	ManualAcks bool
	Logger     *slog.Logger
}

// Client is a single MQTT v5 session over a self-dialed TCP
// connection. Reconnection is owned by the caller: when the session
// drops, Done is closed and the caller dials a fresh Client.
type Client struct {
	opts      Options
	pc        *paho.Client
	conn      net.Conn
	inbound   chan *paho.Publish
	done      chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
	log       *slog.Logger
}

// Dial connects and authenticates a new session.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 30
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", opts.Addr, err)
	}

	c := &Client{
		opts:    opts,
		conn:    conn,
		inbound: make(chan *paho.Publish, inboundBuffer),
		done:    make(chan struct{}),
		log:     opts.Logger.With(slog.String("client_id", opts.ClientID)),
	}

	c.pc = paho.NewClient(paho.ClientConfig{
		ClientID:                   opts.ClientID,
		Conn:                       conn,
		EnableManualAcknowledgment: opts.ManualAcks,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				return c.deliver(pr.Packet)
			},
		},
		OnClientError: func(err error) {
			c.log.Warn("mqtt client error", slog.Any("error", err))
			c.shutdown()
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.log.Warn("mqtt server disconnect", slog.Int("reason_code", int(d.ReasonCode)))
			c.shutdown()
		},
	})

	cp := &paho.Connect{
		ClientID:   opts.ClientID,
		KeepAlive:  opts.KeepAlive,
		CleanStart: opts.Session == SessionEphemeral,
	}
	if opts.Session == SessionPersistent {
		// Session and queued messages survive until the client returns.
		expiry := uint32(0xFFFFFFFF)
		cp.Properties = &paho.ConnectProperties{SessionExpiryInterval: &expiry}
	}
	if opts.Will != nil {
		cp.WillMessage = &paho.WillMessage{
			Retain:  opts.Will.Retain,
			QoS:     opts.Will.QoS,
			Topic:   opts.Will.Topic,
			Payload: opts.Will.Payload,
		}
	}

	ca, err := c.pc.Connect(ctx, cp)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s: %w", opts.ClientID, err)
	}
	if ca.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s refused: reason code %d", opts.ClientID, ca.ReasonCode)
	}
	c.connected.Store(true)
	c.log.Info("mqtt connected",
		slog.String("addr", opts.Addr),
		slog.Bool("persistent", opts.Session == SessionPersistent))
	return c, nil
}

// deliver hands an inbound publish to the consumer. Once the session
// is torn down nobody drains the buffer anymore, so the send also
// watches done; otherwise the paho router goroutine would block on a
// dead client forever.
func (c *Client) deliver(pb *paho.Publish) (bool, error) {
	select {
	case c.inbound <- pb:
	case <-c.done:
	}
	return true, nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
	})
}

// Done is closed when the session is lost or Disconnect was called.
func (c *Client) Done() <-chan struct{} { return c.done }

// Connected reports whether the session is currently live.
func (c *Client) Connected() bool { return c.connected.Load() }

// Messages delivers inbound publishes from subscribed topics.
func (c *Client) Messages() <-chan *paho.Publish { return c.inbound }

// Subscribe adds topic filters to the session at the given QoS.
func (c *Client) Subscribe(ctx context.Context, qos byte, filters ...string) error {
	subs := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		subs = append(subs, paho.SubscribeOptions{Topic: f, QoS: qos})
	}
	if _, err := c.pc.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		return fmt.Errorf("subscribe %v: %w", filters, err)
	}
	return nil
}

// Publish sends a message at the given QoS.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if !c.Connected() {
		return domain.ErrNotConnected
	}
	_, err := c.pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Ack acknowledges a QoS 1 publish when manual acks are enabled.
// Unacked messages are redelivered by the broker on reconnect.
func (c *Client) Ack(pb *paho.Publish) error {
	return c.pc.Ack(pb)
}

// Ping publishes a QoS 0 probe to the heartbeat topic. A timeout here
// means the session is wedged even if the TCP connection looks alive.
func (c *Client) Ping(ctx context.Context, heartbeatTopic string) error {
	if !c.Connected() {
		return domain.ErrNotConnected
	}
	payload, err := json.Marshal(heartbeatDoc{
		ClientID:  c.opts.ClientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      "ping",
	})
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	if _, err := c.pc.Publish(ctx, &paho.Publish{
		Topic:   heartbeatTopic,
		QoS:     0,
		Payload: payload,
	}); err != nil {
		// A wedged session fails the probe even while TCP looks alive;
		// tear it down so the owner redials.
		c.shutdown()
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

type heartbeatDoc struct {
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
}

// PublishStatus publishes the retained presence document for this
// client, mirroring the shape of the last-will payload.
func (c *Client) PublishStatus(ctx context.Context, topic, status string) error {
	payload, err := json.Marshal(statusDoc{
		ClientID:  c.opts.ClientID,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return c.Publish(ctx, topic, 1, true, payload)
}

// Disconnect tears the session down cleanly.
func (c *Client) Disconnect() error {
	defer c.shutdown()
	if err := c.pc.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		return fmt.Errorf("disconnect %s: %w", c.opts.ClientID, err)
	}
	return nil
}

type statusDoc struct {
	ClientID  string `json:"client_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// OfflineWill builds the retained last-will payload announcing an
// unclean disconnect of clientID.
func OfflineWill(topics Topics, clientID string) *Will {
	payload, _ := json.Marshal(statusDoc{
		ClientID:  clientID,
		Status:    "offline",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return &Will{Topic: topics.Status(), Payload: payload, QoS: 1, Retain: true}
}
