package dialer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"outreach-dialer/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Guard bounds predictive fan-out per agent conference and carries the
// leave-campaign stop flag.
type Guard interface {
	// Acquire takes one in-flight dial slot. false means the cap is reached.
	Acquire(ctx context.Context, campaignID int64, agentID string) (bool, error)
	Release(ctx context.Context, campaignID int64, agentID string) error

	MarkStopped(ctx context.Context, campaignID int64, agentID string) error
	ClearStopped(ctx context.Context, campaignID int64, agentID string) error
	Stopped(ctx context.Context, campaignID int64, agentID string) (bool, error)
}

func inflightKey(campaignID int64, agentID string) string {
	return fmt.Sprintf("dialer:inflight:%d:%s", campaignID, agentID)
}

func stopKey(campaignID int64, agentID string) string {
	return fmt.Sprintf("dialer:stop:%d:%s", campaignID, agentID)
}

// RedisGuard keeps both counters in Redis so every api and worker process
// sees the same slots. Slots expire after InFlightTTL in case a callback is lost.
type RedisGuard struct {
	rdb         *redis.Client
	limit       int
	inflightTTL time.Duration
	stopTTL     time.Duration
}

func NewRedisGuard(rdb *redis.Client, limit int, inflightTTL, stopTTL time.Duration) *RedisGuard {
	if limit <= 0 {
		limit = 1
	}
	return &RedisGuard{rdb: rdb, limit: limit, inflightTTL: inflightTTL, stopTTL: stopTTL}
}

func (g *RedisGuard) Acquire(ctx context.Context, campaignID int64, agentID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, g.rdb, inflightKey(campaignID, agentID), g.limit, g.inflightTTL)
}

func (g *RedisGuard) Release(ctx context.Context, campaignID int64, agentID string) error {
	return utils.ReleaseConcurrencyCap(ctx, g.rdb, inflightKey(campaignID, agentID))
}

func (g *RedisGuard) MarkStopped(ctx context.Context, campaignID int64, agentID string) error {
	return g.rdb.Set(ctx, stopKey(campaignID, agentID), "1", g.stopTTL).Err()
}

func (g *RedisGuard) ClearStopped(ctx context.Context, campaignID int64, agentID string) error {
	return g.rdb.Del(ctx, stopKey(campaignID, agentID)).Err()
}

func (g *RedisGuard) Stopped(ctx context.Context, campaignID int64, agentID string) (bool, error) {
	err := g.rdb.Get(ctx, stopKey(campaignID, agentID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryGuard is a process-local Guard for tests and single-process runs.
type MemoryGuard struct {
	mu       sync.Mutex
	limit    int
	inflight map[string]int
	stopped  map[string]bool
}

func NewMemoryGuard(limit int) *MemoryGuard {
	if limit <= 0 {
		limit = 1
	}
	return &MemoryGuard{limit: limit, inflight: map[string]int{}, stopped: map[string]bool{}}
}

func (g *MemoryGuard) Acquire(ctx context.Context, campaignID int64, agentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := inflightKey(campaignID, agentID)
	if g.inflight[k] >= g.limit {
		return false, nil
	}
	g.inflight[k]++
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, campaignID int64, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := inflightKey(campaignID, agentID)
	if g.inflight[k] > 0 {
		g.inflight[k]--
	}
	return nil
}

// InFlight returns the number of held slots for the agent.
func (g *MemoryGuard) InFlight(campaignID int64, agentID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight[inflightKey(campaignID, agentID)]
}

func (g *MemoryGuard) MarkStopped(ctx context.Context, campaignID int64, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped[stopKey(campaignID, agentID)] = true
	return nil
}

func (g *MemoryGuard) ClearStopped(ctx context.Context, campaignID int64, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stopped, stopKey(campaignID, agentID))
	return nil
}

func (g *MemoryGuard) Stopped(ctx context.Context, campaignID int64, agentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped[stopKey(campaignID, agentID)], nil
}
