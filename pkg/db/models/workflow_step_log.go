package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// WorkflowStepLog records each saga step transition with a state snapshot.
type WorkflowStepLog struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	RunID     uuid.UUID                `gorm:"column:run_id;type:uuid;not null"`
	Workflow  string                   `gorm:"column:workflow;not null"`
	Key       string                   `gorm:"column:key;not null"`
	Step      string                   `gorm:"column:step;not null"`
	Sequence  int                      `gorm:"column:sequence;not null"`
	Status    enums.WorkflowStepStatus `gorm:"column:status;not null"`
	State     json.RawMessage          `gorm:"column:state;type:jsonb"`
	Error     *string                  `gorm:"column:error"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (l *WorkflowStepLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
