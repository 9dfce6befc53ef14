package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"outreach-dialer/internal/config"
	"outreach-dialer/internal/dialer"
	"outreach-dialer/internal/telephony"
	"outreach-dialer/pkg/logger"

	"github.com/hibiken/asynq"
)

// Cycler runs one dial cycle.
type Cycler interface {
	RunCycle(ctx context.Context, req dialer.Request) (dialer.Outcome, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	cycler Cycler
	log    *slog.Logger
}

func NewWorker(cfg config.Config, cycler Cycler, log *slog.Logger) *Worker {
	concurrency := cfg.Asynq.Concurrency
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(redisConnOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		cycler: cycler,
		log:    log,
	}
	w.mux.HandleFunc(TaskDialCycle, w.handleDialCycle)
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("scheduler worker stopped: %w", err)
	}
	return nil
}

func (w *Worker) handleDialCycle(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDialCyclePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	req := payload.Request()
	ctx = logger.With(ctx, w.log.With("campaign_id", req.CampaignID, "agent_id", req.AgentID, "task", TaskDialCycle))

	out, err := w.cycler.RunCycle(ctx, req)
	if err != nil {
		if !retryable(err) {
			logger.From(ctx).Warn("dial cycle failed, not retrying", "err", err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	logger.From(ctx).Info("dial cycle ran", "outcome", out.Kind, "attempt_id", out.AttemptID, "call_sid", out.CallSid)
	return nil
}

// retryable is false for errors a new cycle cannot fix: bad input, a foreign
// workspace, or a provider rejection (the attempt is already marked failed).
func retryable(err error) bool {
	if errors.Is(err, dialer.ErrInvalidArgument) || errors.Is(err, dialer.ErrWorkspaceMismatch) {
		return false
	}
	var ge *telephony.GatewayError
	if errors.As(err, &ge) && ge.Permanent() {
		return false
	}
	return true
}
