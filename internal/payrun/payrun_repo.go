package payrun

import (
	"context"
	"database/sql"
	"time"

	"gigpay/internal/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusCount is one row of the progress projection.
type StatusCount struct {
	Status string
	Count  int64
}

//go:generate mockgen -source=payrun_repo.go -destination=mock/payrun_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository

	Create(ctx context.Context, run *PayrollRun) error
	FindAllByCompany(ctx context.Context, companyID string, status string) ([]PayrollRun, error)
	FindByIDAndCompany(ctx context.Context, companyID string, id string) (*PayrollRun, error)
	Update(ctx context.Context, run *PayrollRun) error
	Delete(ctx context.Context, companyID string, id string) error

	// TransitionStatus performs a single-row compare-and-swap on the run
	// status. It reports false when the run was not in fromStatus, which the
	// caller must treat as a lost race or an illegal transition.
	TransitionStatus(ctx context.Context, id string, fromStatus, toStatus string) (bool, error)

	ListItems(ctx context.Context, companyID string, runID string) ([]PayrollItem, error)
	ListDisbursableItems(ctx context.Context, runID string) ([]PayrollItem, error)
	CreateItem(ctx context.Context, item *PayrollItem) error
	DeleteItem(ctx context.Context, companyID string, runID string, itemID string) error
	ReplaceGeneratedItems(ctx context.Context, runID string, items []PayrollItem) error
	MarkPendingItemsApproved(ctx context.Context, runID string) error

	// UpdateItemOutcome records a disbursement result. The guard on status
	// keeps a paid item immutable no matter how the call is raced or retried.
	UpdateItemOutcome(ctx context.Context, itemID string, status string, failureReason *string, gatewayRef *string, processedAt time.Time) error

	CountItemsByStatus(ctx context.Context, companyID string, runID string) ([]StatusCount, error)
}

type repository struct {
	db *gorm.DB
	tx *sql.Tx
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{
		db: r.db,
		tx: tx,
	}
}

func (r *repository) Create(ctx context.Context, run *PayrollRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) FindAllByCompany(ctx context.Context, companyID string, status string) ([]PayrollRun, error) {
	var runs []PayrollRun
	q := r.db.WithContext(ctx).
		Scopes(tenant.Scope(companyID)).
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&runs).Error
	return runs, err
}

func (r *repository) FindByIDAndCompany(ctx context.Context, companyID string, id string) (*PayrollRun, error) {
	var run PayrollRun
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(companyID)).
		First(&run, "id = ?", id).Error
	return &run, err
}

func (r *repository) Update(ctx context.Context, run *PayrollRun) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(run).Error
}

func (r *repository) Delete(ctx context.Context, companyID string, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("run_id = ?", id).
			Scopes(tenant.Scope(companyID)).
			Delete(&PayrollItem{}).Error; err != nil {
			return err
		}
		return tx.
			Scopes(tenant.Scope(companyID)).
			Delete(&PayrollRun{}, "id = ?", id).Error
	})
}

func (r *repository) TransitionStatus(ctx context.Context, id string, fromStatus, toStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&PayrollRun{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]any{
			"status":     toStatus,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListItems(ctx context.Context, companyID string, runID string) ([]PayrollItem, error) {
	var items []PayrollItem
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(companyID)).
		Where("run_id = ?", runID).
		Order("worker_id, type").
		Find(&items).Error
	return items, err
}

func (r *repository) ListDisbursableItems(ctx context.Context, runID string) ([]PayrollItem, error) {
	var items []PayrollItem
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Where("status IN ?", []string{ItemStatusPending, ItemStatusApproved, ItemStatusFailed}).
		Order("created_at").
		Find(&items).Error
	return items, err
}

func (r *repository) CreateItem(ctx context.Context, item *PayrollItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, companyID string, runID string, itemID string) error {
	res := r.db.WithContext(ctx).
		Scopes(tenant.Scope(companyID)).
		Where("run_id = ?", runID).
		Delete(&PayrollItem{}, "id = ?", itemID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ReplaceGeneratedItems(ctx context.Context, runID string, items []PayrollItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("run_id = ? AND source = ?", runID, ItemSourceGenerated).
			Delete(&PayrollItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (r *repository) MarkPendingItemsApproved(ctx context.Context, runID string) error {
	return r.db.WithContext(ctx).
		Model(&PayrollItem{}).
		Where("run_id = ? AND status = ?", runID, ItemStatusPending).
		Updates(map[string]any{
			"status":     ItemStatusApproved,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateItemOutcome(
	ctx context.Context,
	itemID string,
	status string,
	failureReason *string,
	gatewayRef *string,
	processedAt time.Time,
) error {
	return r.db.WithContext(ctx).
		Model(&PayrollItem{}).
		Where("id = ? AND status <> ?", itemID, ItemStatusPaid).
		Updates(map[string]any{
			"status":            status,
			"failure_reason":    failureReason,
			"gateway_reference": gatewayRef,
			"processed_at":      processedAt,
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *repository) CountItemsByStatus(ctx context.Context, companyID string, runID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&PayrollItem{}).
		Select("status, COUNT(*) AS count").
		Scopes(tenant.Scope(companyID)).
		Where("run_id = ?", runID).
		Group("status").
		Scan(&counts).Error
	return counts, err
}
