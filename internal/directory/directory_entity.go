package directory

import "github.com/google/uuid"

// Worker is the read-only projection of the marketplace worker directory.
// The table is owned by the staffing service; gigpay only resolves payout
// destinations and display identities from it.
type Worker struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID         uuid.UUID `gorm:"type:uuid;not null;index"`
	FullName          string    `gorm:"column:full_name"`
	PayoutDestination string    `gorm:"column:payout_destination"`
	Active            bool      `gorm:"column:active"`
}

func (Worker) TableName() string {
	return "workers"
}
