package directory

import (
	"context"

	"gigpay/internal/tenant"

	"gorm.io/gorm"
)

//go:generate mockgen -source=directory_repo.go -destination=mock/directory_repo_mock.go -package=mock
type Repository interface {
	FindByIDAndCompany(ctx context.Context, companyID string, workerID string) (*Worker, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByIDAndCompany(ctx context.Context, companyID string, workerID string) (*Worker, error) {
	var worker Worker
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(companyID)).
		First(&worker, "id = ?", workerID).Error
	return &worker, err
}
