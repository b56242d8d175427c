package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/moderation"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reconcileRepo interface {
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.ModerationResult, error)
	FailTx(tx *gorm.DB, id int64, message string, processedAt time.Time) (bool, error)
}

type adSnapshots interface {
	FindSnapshot(ctx context.Context, itemID int64) (*ads.Snapshot, error)
}

type taskPublisher interface {
	PublishTask(ctx context.Context, msg moderation.TaskMessage) error
}

// TaskReconcileJobParams configure the stale pending sweep.
type TaskReconcileJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Repo      reconcileRepo
	Ads       adSnapshots
	Publisher taskPublisher
	Config    config.ModerationConfig
}

// NewTaskReconcileJob builds the job that rescues pending rows whose task
// message was lost. Rows stale beyond the republish window get a fresh task;
// rows past the hard deadline are failed so the item's pending slot frees up.
func NewTaskReconcileJob(params TaskReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("moderation repository required")
	}
	if params.Ads == nil {
		return nil, fmt.Errorf("advertisement snapshots required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("task publisher required")
	}
	if params.Config.RepublishAfter <= 0 || params.Config.FailAfter <= params.Config.RepublishAfter {
		return nil, fmt.Errorf("invalid reconcile windows: republish %s, fail %s", params.Config.RepublishAfter, params.Config.FailAfter)
	}
	batch := params.Config.ReconcileBatch
	if batch <= 0 {
		batch = 100
	}
	return &taskReconcileJob{
		logg:           params.Logger,
		db:             params.DB,
		repo:           params.Repo,
		ads:            params.Ads,
		publisher:      params.Publisher,
		republishAfter: params.Config.RepublishAfter,
		failAfter:      params.Config.FailAfter,
		batch:          batch,
		now:            time.Now,
	}, nil
}

type taskReconcileJob struct {
	logg           *logger.Logger
	db             txRunner
	repo           reconcileRepo
	ads            adSnapshots
	publisher      taskPublisher
	republishAfter time.Duration
	failAfter      time.Duration
	batch          int
	now            func() time.Time
}

func (j *taskReconcileJob) Name() string { return "task-reconcile" }

func (j *taskReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	rows, err := j.repo.FindStalePending(ctx, now.Add(-j.republishAfter), j.batch)
	if err != nil {
		return fmt.Errorf("find stale pending: %w", err)
	}

	var republished, failed, skipped int
	for _, row := range rows {
		rowCtx := j.logg.WithTaskID(ctx, row.ID)
		rowCtx = j.logg.WithItemID(rowCtx, row.ItemID)

		if now.Sub(row.CreatedAt) >= j.failAfter {
			if err := j.failRow(rowCtx, row.ID, now); err != nil {
				return err
			}
			failed++
			continue
		}

		ok, err := j.republishRow(rowCtx, row)
		if err != nil {
			// Publish failures leave the row pending; the next sweep
			// picks it up again.
			j.logg.Error(rowCtx, "republish failed", err)
			skipped++
			continue
		}
		if ok {
			republished++
		} else {
			skipped++
		}
	}

	summary := j.logg.WithFields(ctx, map[string]any{
		"stale":       len(rows),
		"republished": republished,
		"failed":      failed,
		"skipped":     skipped,
	})
	j.logg.Info(summary, "stale pending sweep complete")
	return nil
}

func (j *taskReconcileJob) failRow(ctx context.Context, id int64, now time.Time) error {
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := j.repo.FailTx(tx, id, "task enqueue failed: no processing within deadline", now)
		if err != nil {
			return err
		}
		if !updated {
			j.logg.Info(ctx, "row no longer pending, skipping fail")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail stale row %d: %w", id, err)
	}
	j.logg.Warn(ctx, "stale pending row failed after hard deadline")
	return nil
}

func (j *taskReconcileJob) republishRow(ctx context.Context, row models.ModerationResult) (bool, error) {
	snapshot, err := j.ads.FindSnapshot(ctx, row.ItemID)
	if err != nil {
		return false, fmt.Errorf("load snapshot for item %d: %w", row.ItemID, err)
	}
	if snapshot == nil {
		// Ad closed after the sweep query; the cascade removes the row.
		return false, nil
	}

	msg := moderation.NewTaskMessage(row.ID, *snapshot)
	if err := j.publisher.PublishTask(ctx, msg); err != nil {
		return false, err
	}
	j.logg.Info(j.logg.WithEventID(ctx, msg.EventID), "stale pending task republished")
	return true, nil
}
