package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/screener/internal/selection"
	"github.com/wonny/screener/pkg/logger"
)

// RunPruner deletes persisted scan runs older than a cutoff
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceJob trims stored scan runs and the engine's execution history
type MaintenanceJob struct {
	pruner      RunPruner // optional
	engine      *selection.Engine
	retention   time.Duration
	keepHistory int
	now         func() time.Time
	logger      *logger.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(pruner RunPruner, engine *selection.Engine, retention time.Duration, keepHistory int, log *logger.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		pruner:      pruner,
		engine:      engine,
		retention:   retention,
		keepHistory: keepHistory,
		now:         time.Now,
		logger:      log,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Schedule returns the cron schedule (every day at 3 AM)
func (j *MaintenanceJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run executes the cleanup
func (j *MaintenanceJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled maintenance")

	pruned := j.engine.PruneHistory(j.keepHistory)

	var deleted int64
	if j.pruner != nil && j.retention > 0 {
		n, err := j.pruner.DeleteRunsBefore(ctx, j.now().Add(-j.retention))
		if err != nil {
			return fmt.Errorf("delete old scan runs: %w", err)
		}
		deleted = n
	}

	if pruned > 0 || deleted > 0 {
		j.logger.WithFields(map[string]interface{}{
			"history_pruned": pruned,
			"runs_deleted":   deleted,
		}).Info("Maintenance completed")
	}

	return nil
}
