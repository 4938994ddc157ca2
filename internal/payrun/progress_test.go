package payrun_test

import (
	"context"
	"testing"

	"gigpay/internal/payrun"
	payrunerrors "gigpay/internal/payrun/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestGetProgress(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New().String()
	runID := uuid.New().String()

	t.Run("mid-batch snapshot", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
			run := draftRun(cid, id)
			run.Status = payrun.StatusProcessing
			return run, nil
		}
		deps.repo.countItemsByStatusFn = func(ctx context.Context, cid, rid string) ([]payrun.StatusCount, error) {
			return []payrun.StatusCount{
				{Status: payrun.ItemStatusPaid, Count: 5},
				{Status: payrun.ItemStatusFailed, Count: 1},
				{Status: payrun.ItemStatusApproved, Count: 4},
			}, nil
		}

		resp, err := deps.service.GetProgress(ctx, companyID, runID)

		assert.NoError(t, err)
		assert.Equal(t, payrun.StatusProcessing, resp.RunStatus)
		assert.Equal(t, int64(10), resp.TotalItems)
		assert.Equal(t, int64(5), resp.Counts[payrun.ItemStatusPaid])
		assert.Equal(t, int64(1), resp.Counts[payrun.ItemStatusFailed])
		assert.Equal(t, int64(4), resp.Counts[payrun.ItemStatusApproved])
		// every status is present even when its count is zero
		assert.Equal(t, int64(0), resp.Counts[payrun.ItemStatusPending])
		assert.Equal(t, 60.0, resp.CompletionPct)
	})

	t.Run("percentage rounds to one decimal", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
			run := draftRun(cid, id)
			run.Status = payrun.StatusProcessing
			return run, nil
		}
		deps.repo.countItemsByStatusFn = func(ctx context.Context, cid, rid string) ([]payrun.StatusCount, error) {
			return []payrun.StatusCount{
				{Status: payrun.ItemStatusPaid, Count: 1},
				{Status: payrun.ItemStatusApproved, Count: 2},
			}, nil
		}

		resp, err := deps.service.GetProgress(ctx, companyID, runID)

		assert.NoError(t, err)
		assert.Equal(t, 33.3, resp.CompletionPct)
	})

	t.Run("empty run reports zero", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
			return draftRun(cid, id), nil
		}

		resp, err := deps.service.GetProgress(ctx, companyID, runID)

		assert.NoError(t, err)
		assert.Equal(t, int64(0), resp.TotalItems)
		assert.Equal(t, 0.0, resp.CompletionPct)
	})

	t.Run("unknown run", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
			return nil, gorm.ErrRecordNotFound
		}

		_, err := deps.service.GetProgress(ctx, companyID, runID)

		assert.ErrorIs(t, err, payrunerrors.ErrRunNotFound)
	})
}
