package enums

// WorkflowStepStatus is the lifecycle of one saga step execution.
type WorkflowStepStatus string

const (
	WorkflowStepStarted            WorkflowStepStatus = "started"
	WorkflowStepCompleted          WorkflowStepStatus = "completed"
	WorkflowStepFailed             WorkflowStepStatus = "failed"
	WorkflowStepCompensated        WorkflowStepStatus = "compensated"
	WorkflowStepCompensationFailed WorkflowStepStatus = "compensation_failed"
)

func (s WorkflowStepStatus) IsValid() bool {
	switch s {
	case WorkflowStepStarted, WorkflowStepCompleted, WorkflowStepFailed, WorkflowStepCompensated, WorkflowStepCompensationFailed:
		return true
	}
	return false
}
