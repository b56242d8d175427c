package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adboardhq/moderation-backend/pkg/logger"
)

const defaultLedgerRetention = 30 * 24 * time.Hour

type ledgerRepo interface {
	PruneLedger(ctx context.Context, before time.Time) (int64, error)
}

// LedgerRetentionJobParams configure the processed events cleanup.
type LedgerRetentionJobParams struct {
	Logger    *logger.Logger
	Repo      ledgerRepo
	Retention time.Duration
}

// NewLedgerRetentionJob builds the job that prunes old dedup ledger rows.
// Retention must exceed the queue's maximum redelivery horizon, otherwise a
// very late duplicate could commit twice.
func NewLedgerRetentionJob(params LedgerRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("moderation repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	return &ledgerRetentionJob{
		logg:      params.Logger,
		repo:      params.Repo,
		retention: retention,
		now:       time.Now,
	}, nil
}

type ledgerRetentionJob struct {
	logg      *logger.Logger
	repo      ledgerRepo
	retention time.Duration
	now       func() time.Time
}

func (j *ledgerRetentionJob) Name() string { return "ledger-retention" }

func (j *ledgerRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.PruneLedger(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("ledger retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "ledger retention cleanup complete")
	return nil
}
