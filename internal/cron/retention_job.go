package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

const (
	defaultRetentionDays  = 30
	defaultOutboxAttempts = 5
	defaultStepLogDays    = 90
)

// RetentionJobParams configure the housekeeping job that trims published
// outbox rows and old settlement step logs.
type RetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      outboxPruner
	StepLog     stepLogPruner
	OutboxDays  int
	MinAttempts int
	StepLogDays int
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type stepLogPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type retentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	stepLog     stepLogPruner
	outboxDays  int
	minAttempts int
	stepLogDays int
	now         func() time.Time
}

// NewRetentionJob builds the retention job. StepLog is optional.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &retentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		stepLog:     params.StepLog,
		outboxDays:  params.OutboxDays,
		minAttempts: params.MinAttempts,
		stepLogDays: params.StepLogDays,
		now:         time.Now,
	}
	if job.outboxDays <= 0 {
		job.outboxDays = defaultRetentionDays
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultOutboxAttempts
	}
	if job.stepLogDays <= 0 {
		job.stepLogDays = defaultStepLogDays
	}
	return job, nil
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.AddDate(0, 0, -j.outboxDays)
	stepLogCutoff := now.AddDate(0, 0, -j.stepLogDays)

	var outboxRows, stepRows int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts)
		if err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		outboxRows = rows
		if j.stepLog == nil {
			return nil
		}
		rows, err = j.stepLog.PruneBefore(ctx, tx, stepLogCutoff)
		if err != nil {
			return fmt.Errorf("prune step log: %w", err)
		}
		stepRows = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":    outboxCutoff,
		"step_log_cutoff":  stepLogCutoff,
		"outbox_deleted":   outboxRows,
		"step_log_deleted": stepRows,
	}), "retention cleanup complete")
	return nil
}
