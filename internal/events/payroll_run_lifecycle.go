package events

import "time"

const (
	PayrollRunLifecycleTopic       = "gigpay.payroll.run.lifecycle.v1"
	PayrollRunProcessRequestTopic  = "gigpay.payroll.run.process.requested.v1"
	PayrollItemFailedTopic         = "gigpay.payroll.item.failed.v1"
)

const (
	EventRunSubmitted         = "payroll_run.submitted"
	EventRunApproved          = "payroll_run.approved"
	EventRunRejected          = "payroll_run.rejected"
	EventRunProcessRequested  = "payroll_run.process_requested"
	EventRunStopRequested     = "payroll_run.stop_requested"
	EventRunProcessingStarted = "payroll_run.processing_started"
	EventRunCompleted         = "payroll_run.completed"
	EventRunFailed            = "payroll_run.failed"
	EventItemFailed           = "payroll_item.failed"
)

// PayrollRunLifecycleEvent is emitted on every run status transition.
type PayrollRunLifecycleEvent struct {
	EventType  string    `json:"event_type"`
	RunID      string    `json:"run_id"`
	Reference  string    `json:"reference"`
	CompanyID  string    `json:"company_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PayrollRunProcessRequestedEvent asks the disburser to execute a run that
// has just been moved into processing.
type PayrollRunProcessRequestedEvent struct {
	EventType   string    `json:"event_type"`
	RunID       string    `json:"run_id"`
	CompanyID   string    `json:"company_id"`
	RequestedBy string    `json:"requested_by"`
	Retry       bool      `json:"retry"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PayrollItemFailedEvent records a single disbursement failure for
// downstream notification; it is informational, the item row is the source
// of truth.
type PayrollItemFailedEvent struct {
	EventType     string    `json:"event_type"`
	RunID         string    `json:"run_id"`
	ItemID        string    `json:"item_id"`
	CompanyID     string    `json:"company_id"`
	WorkerID      string    `json:"worker_id"`
	FailureReason string    `json:"failure_reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}
