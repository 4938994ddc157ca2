package payrun

import (
	"context"
	"errors"

	payrunerrors "gigpay/internal/payrun/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *service) GetItems(ctx context.Context, companyID, id string) ([]ItemResponse, error) {
	if _, err := s.repo.FindByIDAndCompany(ctx, companyID, id); err != nil {
		return nil, mapRepositoryError(err)
	}

	items, err := s.repo.ListItems(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return mapToItemListResponse(items), nil
}

// AddItem appends a manual line to a draft run. Manual items survive
// regeneration; the net amount is always derived, never accepted from the
// caller, so net = gross - deductions - tax holds by construction.
func (s *service) AddItem(ctx context.Context, companyID, actorID, id string, req AddItemRequest) (ItemResponse, error) {
	workerUUID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		return ItemResponse{}, payrunerrors.ErrInvalidWorkerID
	}
	if !validItemTypes[req.Type] {
		return ItemResponse{}, payrunerrors.ErrInvalidItemType
	}
	if req.GrossAmount.IsNegative() || req.Deductions.IsNegative() || req.Tax.IsNegative() ||
		req.Hours.IsNegative() || req.Rate.IsNegative() {
		return ItemResponse{}, payrunerrors.ErrInvalidMoneyValue
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ItemResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return ItemResponse{}, mapRepositoryError(err)
	}
	if run.Status != StatusDraft {
		return ItemResponse{}, payrunerrors.ErrRunNotDraft
	}

	itemID := uuid.New()
	item := &PayrollItem{
		ID:             itemID,
		RunID:          run.ID,
		CompanyID:      run.CompanyID,
		WorkerID:       workerUUID,
		Type:           req.Type,
		Source:         ItemSourceManual,
		Description:    req.Description,
		Hours:          req.Hours,
		Rate:           req.Rate,
		GrossAmount:    req.GrossAmount.Round(2),
		Deductions:     req.Deductions.Round(2),
		Tax:            req.Tax.Round(2),
		NetAmount:      req.GrossAmount.Round(2).Sub(req.Deductions.Round(2)).Sub(req.Tax.Round(2)),
		Status:         ItemStatusPending,
		IdempotencyKey: disbursementKey(run.ID, itemID),
	}

	if err := qtx.CreateItem(ctx, item); err != nil {
		return ItemResponse{}, mapRepositoryError(err)
	}

	items, err := qtx.ListItems(ctx, companyID, id)
	if err != nil {
		return ItemResponse{}, err
	}
	recomputeAggregates(run, items)
	if err := qtx.Update(ctx, run); err != nil {
		return ItemResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return ItemResponse{}, err
	}

	return mapToItemResponse(*item), nil
}

func (s *service) RemoveItem(ctx context.Context, companyID, id, itemID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return mapRepositoryError(err)
	}
	if run.Status != StatusDraft {
		return payrunerrors.ErrRunNotDraft
	}

	if err := qtx.DeleteItem(ctx, companyID, id, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payrunerrors.ErrItemNotFound
		}
		return err
	}

	items, err := qtx.ListItems(ctx, companyID, id)
	if err != nil {
		return err
	}
	recomputeAggregates(run, items)
	if err := qtx.Update(ctx, run); err != nil {
		return err
	}

	return tx.Commit()
}
