package scheduler

import (
	"context"
	"errors"
	"time"

	"outreach-dialer/internal/config"
	"outreach-dialer/internal/dialer"
	"outreach-dialer/pkg/logger"

	"github.com/hibiken/asynq"
)

// dedupeRetention keeps finished cycle tasks around so a webhook replayed after
// the cycle ran still collides on its task id.
const dedupeRetention = time.Hour

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client queues feed-forward dial cycles.
type Client struct {
	client enqueuer
	closer func() error
	queue  string
}

func NewClient(cfg config.Config) *Client {
	c := asynq.NewClient(redisConnOpt(cfg))
	return &Client{client: c, closer: c.Close, queue: queueName(cfg)}
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// Redial enqueues one dial cycle with key as the task id. A key that was
// already enqueued is not an error.
func (c *Client) Redial(ctx context.Context, req dialer.Request, key string) error {
	task, err := NewDialCycleTask(req)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.MaxRetry(3),
		asynq.Retention(dedupeRetention),
	}
	if key != "" {
		opts = append(opts, asynq.TaskID(key))
	}

	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logger.From(ctx).Debug("dial cycle already queued", "task_id", key)
		return nil
	}
	return err
}

func redisConnOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func queueName(cfg config.Config) string {
	if cfg.Asynq.Queue == "" {
		return "default"
	}
	return cfg.Asynq.Queue
}
