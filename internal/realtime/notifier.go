package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Status is what an agent's screen shows for the current contact.
type Status string

const (
	StatusDialing   Status = "dialing"
	StatusConnected Status = "connected"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBusy      Status = "busy"
	StatusNoAnswer  Status = "no-answer"
	StatusVoicemail Status = "voicemail"
	StatusIdle      Status = "idle"
)

// Event is one presence update. Fire and forget: subscribers that miss it
// recover from the attempt row on their next read.
type Event struct {
	ContactID int64  `json:"contact_id"`
	Status    Status `json:"status"`
}

// Notifier publishes presence events on a channel keyed by agent id.
type Notifier interface {
	Publish(ctx context.Context, agentID string, e Event) error
}

// Channel is the pub/sub channel for an agent.
func Channel(agentID string) string {
	return fmt.Sprintf("dialer:presence:%s", agentID)
}

// RedisNotifier publishes events with Redis PUBLISH.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Publish(ctx context.Context, agentID string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, Channel(agentID), payload).Err()
}

// Subscribe opens a subscription to an agent's channel. Callers must Close it.
func (n *RedisNotifier) Subscribe(ctx context.Context, agentID string) *redis.PubSub {
	return n.rdb.Subscribe(ctx, Channel(agentID))
}

// MemoryNotifier records published events. Used by tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{events: map[string][]Event{}}
}

func (n *MemoryNotifier) Publish(ctx context.Context, agentID string, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[agentID] = append(n.events[agentID], e)
	return nil
}

// Events returns a snapshot of what was published to agentID.
func (n *MemoryNotifier) Events(agentID string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events[agentID]))
	copy(out, n.events[agentID])
	return out
}
