package payrun

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Run statuses. A run is mutable only while draft; completed is terminal,
// failed is re-enterable through RetryFailed.
const (
	StatusDraft           = "draft"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusProcessing      = "processing"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
)

// Item statuses. paid and failed are terminal; failed items can be
// re-queued by a retry pass.
const (
	ItemStatusPending  = "pending"
	ItemStatusApproved = "approved"
	ItemStatusPaid     = "paid"
	ItemStatusFailed   = "failed"
)

// Item types.
const (
	ItemTypeRegular       = "regular"
	ItemTypeOvertime      = "overtime"
	ItemTypeBonus         = "bonus"
	ItemTypeAdjustment    = "adjustment"
	ItemTypeReimbursement = "reimbursement"
)

// Item provenance. Generated items are replaced wholesale by the
// aggregator; manual items survive regeneration.
const (
	ItemSourceGenerated = "generated"
	ItemSourceManual    = "manual"
)

type PayrollRun struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index:idx_run_company_status"`

	// Human-readable reference, e.g. PR-2026-0007. Unique per company.
	Reference string `gorm:"type:varchar(20);not null;uniqueIndex:uq_run_reference"`

	PeriodStart time.Time `gorm:"type:date;not null"`
	PeriodEnd   time.Time `gorm:"type:date;not null"`
	PayDate     time.Time `gorm:"type:date;not null"`

	Status string  `gorm:"type:varchar(20);not null;default:'draft';index:idx_run_company_status"`
	Notes  *string `gorm:"type:text"`

	// Denormalized aggregates, recomputed whenever items change while the
	// run is still editable.
	GrossAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	NetAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	TotalWorkers int             `gorm:"not null;default:0"`

	CreatedBy       uuid.UUID  `gorm:"type:uuid;not null"`
	ApprovedBy      *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt      *time.Time
	RejectionReason *string `gorm:"type:text"`

	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []PayrollItem `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (PayrollRun) TableName() string {
	return "payroll_runs"
}

type PayrollItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkerID  uuid.UUID `gorm:"type:uuid;not null;index"`

	Type        string `gorm:"type:varchar(20);not null"`
	Source      string `gorm:"type:varchar(10);not null;default:'generated'"`
	Description string `gorm:"type:varchar(200)"`

	Hours decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0"`
	Rate  decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`

	// net = gross - deductions - tax, always.
	GrossAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Deductions  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Tax         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	NetAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	Status        string  `gorm:"type:varchar(10);not null;default:'pending';index"`
	FailureReason *string `gorm:"type:text"`

	// Stable once created, never regenerated. The gateway dedupes on it, so
	// a retried transport failure can never double-pay.
	IdempotencyKey   string  `gorm:"type:varchar(64);not null;uniqueIndex:uq_item_idempotency_key"`
	GatewayReference *string `gorm:"type:varchar(64)"`

	ProcessedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PayrollItem) TableName() string {
	return "payroll_items"
}

// IsTerminal reports whether the item has reached a final disbursement
// outcome for the current pass.
func (i PayrollItem) IsTerminal() bool {
	return i.Status == ItemStatusPaid || i.Status == ItemStatusFailed
}

// disbursementKeyNS namespaces idempotency keys under the owning run so the
// same worker/type pair in two different runs never collides.
func disbursementKey(runID, itemID uuid.UUID) string {
	return uuid.NewSHA1(runID, []byte("disburse:"+itemID.String())).String()
}

// generatedItemID derives a deterministic item id from the run, worker and
// type, so regenerating a draft run yields the identical item set instead of
// duplicates.
func generatedItemID(runID, workerID uuid.UUID, itemType string) uuid.UUID {
	return uuid.NewSHA1(runID, []byte("item:"+workerID.String()+":"+itemType))
}

var validItemTypes = map[string]bool{
	ItemTypeRegular:       true,
	ItemTypeOvertime:      true,
	ItemTypeBonus:         true,
	ItemTypeAdjustment:    true,
	ItemTypeReimbursement: true,
}
