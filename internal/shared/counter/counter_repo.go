// Package counter hands out per-company monotonic sequence values, backing
// human-readable reference numbers such as payroll run numbers.
package counter

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -destination=mock/counter_repo_mock.go -package=mock . Repository
type Repository interface {
	Next(ctx context.Context, companyID string, name string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Next increments and returns the named counter for the company. The upsert
// increments in one statement, so concurrent callers never see the same value.
func (r *repository) Next(ctx context.Context, companyID string, name string) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO company_counters (company_id, counter_type, last_value, updated_at)
		VALUES (?, ?, 1, now())
		ON CONFLICT (company_id, counter_type) DO UPDATE
		SET last_value = company_counters.last_value + 1, updated_at = now()
		RETURNING last_value
	`, companyID, name).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
