package payrun

import (
	"errors"
	"strings"
	"time"

	payrunerrors "gigpay/internal/payrun/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func mapToRunResponse(run PayrollRun) RunResponse {
	resp := RunResponse{
		ID:           run.ID.String(),
		CompanyID:    run.CompanyID.String(),
		Reference:    run.Reference,
		PeriodStart:  run.PeriodStart.Format("2006-01-02"),
		PeriodEnd:    run.PeriodEnd.Format("2006-01-02"),
		PayDate:      run.PayDate.Format("2006-01-02"),
		Status:       run.Status,
		Notes:        run.Notes,
		GrossAmount:  run.GrossAmount,
		NetAmount:    run.NetAmount,
		TotalWorkers: run.TotalWorkers,
		CreatedBy:    run.CreatedBy.String(),
		RejectionReason: run.RejectionReason,
	}

	if run.ApprovedBy != nil {
		v := run.ApprovedBy.String()
		resp.ApprovedBy = &v
	}
	if run.ApprovedAt != nil {
		v := run.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &v
	}
	if run.ProcessingStartedAt != nil {
		v := run.ProcessingStartedAt.Format(time.RFC3339)
		resp.ProcessingStartedAt = &v
	}
	if run.CompletedAt != nil {
		v := run.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &v
	}

	return resp
}

func mapToRunListResponse(runs []PayrollRun) []RunResponse {
	resp := make([]RunResponse, len(runs))
	for i, run := range runs {
		resp[i] = mapToRunResponse(run)
	}
	return resp
}

func mapToItemResponse(item PayrollItem) ItemResponse {
	resp := ItemResponse{
		ID:            item.ID.String(),
		RunID:         item.RunID.String(),
		WorkerID:      item.WorkerID.String(),
		Type:          item.Type,
		Source:        item.Source,
		Description:   item.Description,
		Hours:         item.Hours,
		Rate:          item.Rate,
		GrossAmount:   item.GrossAmount,
		Deductions:    item.Deductions,
		Tax:           item.Tax,
		NetAmount:     item.NetAmount,
		Status:        item.Status,
		FailureReason: item.FailureReason,
		GatewayRef:    item.GatewayReference,
	}

	if item.ProcessedAt != nil {
		v := item.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &v
	}

	return resp
}

func mapToItemListResponse(items []PayrollItem) []ItemResponse {
	resp := make([]ItemResponse, len(items))
	for i, item := range items {
		resp[i] = mapToItemResponse(item)
	}
	return resp
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payrunerrors.ErrRunNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "uq_run_reference":
				return payrunerrors.ErrReferenceConflict
			case "uq_item_idempotency_key":
				// The unique key already absorbed a duplicate aggregation
				// write; the caller regenerated concurrently.
				return payrunerrors.ErrRunNotDraft
			}
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "duplicate key value") && strings.Contains(errMsg, "uq_run_reference") {
		return payrunerrors.ErrReferenceConflict
	}

	return err
}
