package payrun_test

import (
	"context"
	"testing"

	"gigpay/internal/payrun"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeNameResolver struct {
	names map[string]string
}

func (f *fakeNameResolver) ResolveName(ctx context.Context, companyID, workerID string) string {
	return f.names[workerID]
}

func summaryItem(runID, companyID, workerID uuid.UUID, itemType, gross, ded, tax string) payrun.PayrollItem {
	g, d, x := dec(gross), dec(ded), dec(tax)
	return payrun.PayrollItem{
		ID:          uuid.New(),
		RunID:       runID,
		CompanyID:   companyID,
		WorkerID:    workerID,
		Type:        itemType,
		Source:      payrun.ItemSourceGenerated,
		GrossAmount: g,
		Deductions:  d,
		Tax:         x,
		NetAmount:   g.Sub(d).Sub(x),
		Status:      payrun.ItemStatusPaid,
	}
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	workerA := uuid.New()
	workerB := uuid.New()
	runID := uuid.New().String()

	deps := setupServiceTest(t)
	defer deps.db.Close()

	run := draftRun(companyID.String(), runID)
	run.Status = payrun.StatusCompleted
	deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
		return run, nil
	}
	deps.repo.listItemsFn = func(ctx context.Context, cid, rid string) ([]payrun.PayrollItem, error) {
		return []payrun.PayrollItem{
			summaryItem(run.ID, companyID, workerA, payrun.ItemTypeRegular, "240", "12", "24"),
			summaryItem(run.ID, companyID, workerA, payrun.ItemTypeOvertime, "60", "3", "6"),
			summaryItem(run.ID, companyID, workerB, payrun.ItemTypeRegular, "100", "5", "10"),
			summaryItem(run.ID, companyID, workerB, payrun.ItemTypeReimbursement, "45.5", "0", "0"),
		}, nil
	}

	resp, err := deps.service.Summarize(ctx, companyID.String(), runID)

	assert.NoError(t, err)
	assert.Equal(t, payrun.StatusCompleted, resp.Run.Status)

	if assert.Len(t, resp.Workers, 2) {
		a := resp.Workers[0]
		assert.Equal(t, workerA.String(), a.WorkerID)
		assert.True(t, a.GrossAmount.Equal(dec("300")))
		assert.True(t, a.NetAmount.Equal(dec("255")))
		assert.Len(t, a.Items, 2)

		b := resp.Workers[1]
		assert.True(t, b.GrossAmount.Equal(dec("145.5")))
		assert.True(t, b.NetAmount.Equal(dec("130.5")))
	}

	// by-type groups are sorted by type name
	if assert.Len(t, resp.ByType, 3) {
		assert.Equal(t, payrun.ItemTypeOvertime, resp.ByType[0].Type)
		assert.True(t, resp.ByType[0].GrossAmount.Equal(dec("60")))
		assert.Equal(t, payrun.ItemTypeRegular, resp.ByType[1].Type)
		assert.True(t, resp.ByType[1].GrossAmount.Equal(dec("340")))
		assert.Equal(t, payrun.ItemTypeReimbursement, resp.ByType[2].Type)
	}

	assert.Equal(t, 2, resp.Totals.Workers)
	assert.Equal(t, 4, resp.Totals.Items)
	assert.True(t, resp.Totals.GrossAmount.Equal(dec("445.5")))
	assert.True(t, resp.Totals.NetAmount.Equal(dec("385.5")))
}

func TestSummarize_ResolvesWorkerNames(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	workerA := uuid.New()
	runID := uuid.New().String()

	deps := setupServiceTestWithResolver(t, &fakeNameResolver{
		names: map[string]string{workerA.String(): "Dana Whitfield"},
	})
	defer deps.db.Close()

	run := draftRun(companyID.String(), runID)
	deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
		return run, nil
	}
	deps.repo.listItemsFn = func(ctx context.Context, cid, rid string) ([]payrun.PayrollItem, error) {
		return []payrun.PayrollItem{
			summaryItem(run.ID, companyID, workerA, payrun.ItemTypeRegular, "100", "5", "10"),
		}, nil
	}

	resp, err := deps.service.Summarize(ctx, companyID.String(), runID)

	assert.NoError(t, err)
	if assert.Len(t, resp.Workers, 1) {
		assert.Equal(t, "Dana Whitfield", resp.Workers[0].WorkerName)
	}
}

func TestSummarize_EmptyRun(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New().String()
	runID := uuid.New().String()

	deps := setupServiceTest(t)
	defer deps.db.Close()

	deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*payrun.PayrollRun, error) {
		return draftRun(cid, id), nil
	}

	resp, err := deps.service.Summarize(ctx, companyID, runID)

	assert.NoError(t, err)
	assert.Empty(t, resp.Workers)
	assert.Equal(t, 0, resp.Totals.Items)
	assert.True(t, resp.Totals.GrossAmount.IsZero())
}
