// Package mqtt implements the broker adapter: queue and DLQ topics,
// the paho session wrapper, the retry manager, the DLQ manager, the
// $SYS stats client, and the worker runtime.
package mqtt

import (
	"fmt"
	"strings"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// Broker-maintained counters ($SYS tree, Mosquitto naming).
const (
	SysStoredMessages   = "$SYS/broker/messages/stored"
	SysConnectedClients = "$SYS/broker/clients/connected"
)

// Topics builds every topic under the configured prefix. One queue and
// one DLQ topic per vendor, plus the shared status and heartbeat
// channels.
type Topics struct {
	prefix string
}

// NewTopics returns a Topics rooted at prefix (usually "bots").
func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.TrimSuffix(prefix, "/")}
}

// Queue is the work queue topic for one vendor, e.g. bots/queue/hdi.
func (t Topics) Queue(v domain.Vendor) string {
	return fmt.Sprintf("%s/queue/%s", t.prefix, v)
}

// QueueWildcard matches every vendor queue.
func (t Topics) QueueWildcard() string {
	return t.prefix + "/queue/+"
}

// SharedQueue is the shared-subscription filter a worker group uses to
// split the queue stream between members.
func (t Topics) SharedQueue(group string) string {
	return fmt.Sprintf("$share/%s/%s", group, t.QueueWildcard())
}

// SharedQueueVendor pins a worker group to a single vendor queue.
func (t Topics) SharedQueueVendor(group string, v domain.Vendor) string {
	return fmt.Sprintf("$share/%s/%s", group, t.Queue(v))
}

// DLQ is the dead-letter topic for one vendor.
func (t Topics) DLQ(v domain.Vendor) string {
	return fmt.Sprintf("%s/dlq/%s", t.prefix, v)
}

// DLQWildcard matches every vendor DLQ.
func (t Topics) DLQWildcard() string {
	return t.prefix + "/dlq/#"
}

// Status is the retained client presence topic.
func (t Topics) Status() string {
	return t.prefix + "/clients/status"
}

// Heartbeat is the QoS 0 liveness probe topic.
func (t Topics) Heartbeat() string {
	return t.prefix + "/heartbeat"
}

// VendorFromTopic extracts and validates the vendor encoded as the
// final topic segment of a queue or DLQ topic.
func VendorFromTopic(topic string) (domain.Vendor, error) {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return "", fmt.Errorf("topic %q has no vendor segment: %w", topic, domain.ErrInvalidVendor)
	}
	return domain.ParseVendor(topic[i+1:])
}
