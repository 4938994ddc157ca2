// Package workentry reads completed, unpaid work units recorded by the
// staffing side of the marketplace. The payroll engine consumes them
// read-only; marking them paid is the staffing service's concern once it
// observes a completed run.
package workentry

import (
	"context"
	"time"

	"gigpay/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	KindShift         = "shift"
	KindOvertime      = "overtime"
	KindBonus         = "bonus"
	KindAdjustment    = "adjustment"
	KindReimbursement = "reimbursement"
)

type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkerID  uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind        string          `gorm:"type:varchar(20);not null"`
	WorkedOn    time.Time       `gorm:"type:date;not null;index"`
	Hours       decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0"`
	Rate        decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Description string          `gorm:"type:varchar(200)"`

	Completed bool `gorm:"not null;default:false"`
	Paid      bool `gorm:"not null;default:false"`
}

func (Entry) TableName() string {
	return "work_entries"
}

//go:generate mockgen -source=workentry_repo.go -destination=mock/workentry_repo_mock.go -package=mock
type Repository interface {
	ListCompletedUnpaid(ctx context.Context, companyID string, from, to time.Time) ([]Entry, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListCompletedUnpaid(ctx context.Context, companyID string, from, to time.Time) ([]Entry, error) {
	var entries []Entry
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(companyID)).
		Where("completed = TRUE AND paid = FALSE").
		Where("worked_on BETWEEN ? AND ?", from, to).
		Order("worker_id, worked_on").
		Find(&entries).Error
	return entries, err
}
