package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
)

// Repository persists the step log.
type Repository interface {
	Append(ctx context.Context, entry *models.WorkflowStepLog) error
	ListRun(ctx context.Context, runID uuid.UUID) ([]models.WorkflowStepLog, error)
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed step log.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, entry *models.WorkflowStepLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListRun(ctx context.Context, runID uuid.UUID) ([]models.WorkflowStepLog, error) {
	var entries []models.WorkflowStepLog
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

// PruneBefore hard-deletes step log rows written before cutoff.
func (r *repository) PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	result := conn.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.WorkflowStepLog{})
	return result.RowsAffected, result.Error
}
