package orders

import (
	"context"
	"fmt"

	"tow-dispatch/internal/general/logger"

	"github.com/robfig/cron/v3"
)

// SearchJob re-runs the truck search for SEARCHING orders on a fixed
// schedule and enforces the wait ceiling. Backoff between attempts for one
// order is simply the sweep interval.
type SearchJob struct {
	service *Service
	cron    *cron.Cron
	logger  *logger.Logger
}

// NewSearchJob creates the sweep job; the interval comes from the service
// config.
func NewSearchJob(service *Service, log *logger.Logger) *SearchJob {
	return &SearchJob{
		service: service,
		cron:    cron.New(cron.WithSeconds()),
		logger:  log,
	}
}

// Start schedules the sweep. Sweeps never overlap thanks to the skip-if-
// running wrapper, so a slow store cannot pile up match cycles.
func (j *SearchJob) Start() error {
	interval := j.service.cfg.SweepInterval
	spec := fmt.Sprintf("@every %s", interval)

	_, err := j.cron.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		j.service.Sweep(context.Background())
	})))
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info(context.Background(), "search_job_started", "Order search sweep scheduled", map[string]any{
		"interval": interval.String(),
	})
	return nil
}

// Stop halts scheduling; an in-flight sweep finishes on its own.
func (j *SearchJob) Stop() {
	j.cron.Stop()
	j.logger.Info(context.Background(), "search_job_stopped", "Order search sweep stopped", nil)
}
