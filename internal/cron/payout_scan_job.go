package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/metrics"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-payouts/pkg/pagination"
)

const (
	defaultScanBatchSize  = 100
	defaultScanRetryCount = 3
	defaultScanBaseDelay  = 1000 * time.Millisecond
)

// PayoutScanJobParams configure the daily payout scan.
type PayoutScanJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Reader     eligibleOrderReader
	Outbox     pendingEmitter
	Metrics    *metrics.PayoutMetrics
	BatchSize  int
	RetryCount int
	BaseDelay  time.Duration
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eligibleOrderReader interface {
	ListEligibleOrders(ctx context.Context, params pagination.Page) ([]EligibleOrder, string, error)
}

type pendingEmitter interface {
	EmitUnlessPending(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// ScanSummary reports what one scan enqueued.
type ScanSummary struct {
	ScanID   string
	Pages    int
	Scanned  int
	Enqueued int
	Skipped  int
	Failed   int
}

// PayoutScanJob enqueues a payout.requested event for every order with settled
// funds that has not been paid out yet.
type PayoutScanJob struct {
	logg       *logger.Logger
	db         txRunner
	reader     eligibleOrderReader
	outbox     pendingEmitter
	metrics    *metrics.PayoutMetrics
	batchSize  int
	retryCount int
	baseDelay  time.Duration
	now        func() time.Time
}

// NewPayoutScanJob builds the payout scan cron job.
func NewPayoutScanJob(params PayoutScanJobParams) (*PayoutScanJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("eligible order reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	job := &PayoutScanJob{
		logg:       params.Logger,
		db:         params.DB,
		reader:     params.Reader,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		batchSize:  params.BatchSize,
		retryCount: params.RetryCount,
		baseDelay:  params.BaseDelay,
		now:        time.Now,
	}
	if job.batchSize <= 0 {
		job.batchSize = defaultScanBatchSize
	}
	if job.retryCount <= 0 {
		job.retryCount = defaultScanRetryCount
	}
	if job.baseDelay <= 0 {
		job.baseDelay = defaultScanBaseDelay
	}
	return job, nil
}

func (j *PayoutScanJob) Name() string { return "payout-scan" }

func (j *PayoutScanJob) Run(ctx context.Context) error {
	_, err := j.RunDailyPayoutScan(ctx, j.batchSize, j.retryCount, int(j.baseDelay/time.Millisecond))
	return err
}

// RunDailyPayoutScan pages through eligible orders and enqueues one payout
// request per order. The n-th order enqueued in a run is delayed by
// baseDelayMS*(n+1) so requests reach the worker spread out over time.
// Per-order failures are collected and do not stop the scan.
func (j *PayoutScanJob) RunDailyPayoutScan(ctx context.Context, batchSize, retryCount, baseDelayMS int) (ScanSummary, error) {
	if batchSize <= 0 {
		batchSize = j.batchSize
	}
	if retryCount <= 0 {
		retryCount = j.retryCount
	}
	baseDelay := time.Duration(baseDelayMS) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = j.baseDelay
	}

	summary := ScanSummary{ScanID: uuid.NewString()}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scan_id":     summary.ScanID,
		"batch_size":  batchSize,
		"retry_count": retryCount,
	})

	seen := make(map[uuid.UUID]struct{})
	position := 0
	cursor := ""
	var errs error
	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		orders, next, err := j.reader.ListEligibleOrders(ctx, pagination.Page{Limit: batchSize, After: cursor})
		if err != nil {
			return summary, multierr.Append(errs, fmt.Errorf("list eligible orders: %w", err))
		}
		summary.Pages++
		summary.Scanned += len(orders)

		for _, order := range orders {
			if _, dup := seen[order.ID]; dup {
				continue
			}
			seen[order.ID] = struct{}{}

			delay := baseDelay * time.Duration(position+1)
			position++
			enqueued, err := j.enqueue(ctx, summary.ScanID, order, retryCount, delay)
			switch {
			case err != nil:
				summary.Failed++
				errs = multierr.Append(errs, fmt.Errorf("enqueue order %s: %w", order.ID, err))
			case enqueued:
				summary.Enqueued++
			default:
				summary.Skipped++
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	j.metrics.AddEnqueued(summary.Enqueued)
	j.logg.Info(j.logg.WithFields(logCtx, map[string]any{
		"pages":    summary.Pages,
		"scanned":  summary.Scanned,
		"enqueued": summary.Enqueued,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}), "payout scan complete")
	return summary, errs
}

func (j *PayoutScanJob) enqueue(ctx context.Context, scanID string, order EligibleOrder, retryCount int, delay time.Duration) (bool, error) {
	var enqueued bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.outbox.EmitUnlessPending(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.PayoutRequestedEvent{
				OrderID:     order.ID,
				Attempt:     1,
				MaxAttempts: retryCount,
				Delay:       delay,
				ScanID:      scanID,
				RequestedAt: j.now().UTC(),
			},
			Delay: delay,
		})
		enqueued = ok
		return err
	})
	return enqueued, err
}
