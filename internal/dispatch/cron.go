package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// runTimeout bounds one scheduled dispatch pass.
const runTimeout = 5 * time.Minute

// Runner triggers dispatch passes on a cron schedule.
type Runner struct {
	cron      *cron.Cron
	processor *Processor
	logger    *slog.Logger
}

// NewRunner schedules the processor on the given cron expression.
// Standard five-field expressions and @every descriptors are accepted.
func NewRunner(log *slog.Logger, processor *Processor, schedule string) (*Runner, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		cron:      cron.New(),
		processor: processor,
		logger:    log.With(slog.String("service", "dispatch")),
	}
	if _, err := r.cron.AddFunc(schedule, r.runOnce); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	summary, err := r.processor.Run(ctx)
	if err != nil {
		r.logger.Error("scheduled dispatch failed", slog.Any("error", err))
		return
	}
	if summary.Total > 0 {
		r.logger.Info("scheduled dispatch",
			slog.Int("processed", summary.Processed),
			slog.Int("failed", summary.Failed))
	}
}

// Start begins the schedule in its own goroutine.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}
