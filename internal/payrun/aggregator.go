package payrun

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gigpay/internal/audit"
	"gigpay/internal/paycycle"
	payrunerrors "gigpay/internal/payrun/errors"
	"gigpay/internal/workentry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GenerateItems materializes payable work for every eligible worker in the
// run period. It is idempotent per draft run: each invocation fully replaces
// the previously generated items (deterministic ids make the regenerated set
// identical, not duplicated) while manually added items are preserved.
func (s *service) GenerateItems(ctx context.Context, companyID, actorID, id string) (RunResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	run, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}
	if run.Status != StatusDraft {
		return RunResponse{}, payrunerrors.ErrRunNotDraft
	}

	rules, err := s.cycles.Resolve(ctx, companyID)
	if err != nil {
		return RunResponse{}, err
	}

	entries, err := s.work.ListCompletedUnpaid(ctx, companyID, run.PeriodStart, run.PeriodEnd)
	if err != nil {
		return RunResponse{}, err
	}
	if len(entries) == 0 {
		return RunResponse{}, payrunerrors.ErrNoEligibleWork
	}

	generated := buildItems(run, entries, rules)

	if err := qtx.ReplaceGeneratedItems(ctx, id, generated); err != nil {
		return RunResponse{}, mapRepositoryError(err)
	}

	items, err := qtx.ListItems(ctx, companyID, id)
	if err != nil {
		return RunResponse{}, err
	}
	recomputeAggregates(run, items)

	if err := qtx.Update(ctx, run); err != nil {
		return RunResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return RunResponse{}, err
	}

	s.logger.Info("payroll items generated",
		zap.String("run_id", id),
		zap.Int("generated_items", len(generated)),
		zap.Int("total_items", len(items)),
	)
	s.sink.Record(ctx, audit.Entry{
		Action:  "PAYROLL_ITEMS_GENERATED",
		Message: "payroll items regenerated from work entries",
		Meta: map[string]any{
			"run_id":   id,
			"actor_id": actorID,
			"items":    len(generated),
		},
	})

	return mapToRunResponse(*run), nil
}

// workerBucket accumulates one worker's entries per item type before the
// bucket is flattened into PayrollItems.
type workerBucket struct {
	workerID uuid.UUID
	hours    map[string]decimal.Decimal
	gross    map[string]decimal.Decimal
}

func buildItems(run *PayrollRun, entries []workentry.Entry, rules paycycle.Rules) []PayrollItem {
	buckets := map[uuid.UUID]*workerBucket{}
	var order []uuid.UUID

	for _, e := range entries {
		b, ok := buckets[e.WorkerID]
		if !ok {
			b = &workerBucket{
				workerID: e.WorkerID,
				hours:    map[string]decimal.Decimal{},
				gross:    map[string]decimal.Decimal{},
			}
			buckets[e.WorkerID] = b
			order = append(order, e.WorkerID)
		}

		itemType, amount := entryValue(e, rules)
		b.hours[itemType] = b.hours[itemType].Add(e.Hours)
		b.gross[itemType] = b.gross[itemType].Add(amount)
	}

	// Stable worker order, then fixed type order: regeneration yields
	// byte-identical output for identical input.
	sort.Slice(order, func(i, j int) bool {
		return order[i].String() < order[j].String()
	})
	typeOrder := []string{
		ItemTypeRegular,
		ItemTypeOvertime,
		ItemTypeBonus,
		ItemTypeAdjustment,
		ItemTypeReimbursement,
	}

	var items []PayrollItem
	for _, workerID := range order {
		b := buckets[workerID]
		for _, itemType := range typeOrder {
			gross, ok := b.gross[itemType]
			if !ok || gross.IsZero() {
				continue
			}
			items = append(items, newGeneratedItem(run, workerID, itemType, b.hours[itemType], gross, rules))
		}
	}

	return items
}

// entryValue maps one work entry to its item type and gross contribution.
func entryValue(e workentry.Entry, rules paycycle.Rules) (string, decimal.Decimal) {
	switch e.Kind {
	case workentry.KindShift:
		return ItemTypeRegular, e.Hours.Mul(e.Rate)
	case workentry.KindOvertime:
		return ItemTypeOvertime, e.Hours.Mul(e.Rate).Mul(rules.OvertimeMultiplier)
	case workentry.KindBonus:
		return ItemTypeBonus, e.Amount
	case workentry.KindAdjustment:
		return ItemTypeAdjustment, e.Amount
	case workentry.KindReimbursement:
		return ItemTypeReimbursement, e.Amount
	default:
		return ItemTypeAdjustment, e.Amount
	}
}

func newGeneratedItem(
	run *PayrollRun,
	workerID uuid.UUID,
	itemType string,
	hours decimal.Decimal,
	gross decimal.Decimal,
	rules paycycle.Rules,
) PayrollItem {
	gross = gross.Round(2)

	var deductions, tax decimal.Decimal
	// Reimbursements repay the worker's own money; they carry no
	// deductions or withholding.
	if itemType != ItemTypeReimbursement {
		deductions = gross.Mul(rules.DeductionRate).Round(2)
		tax = gross.Mul(rules.TaxRate).Round(2)
	}
	net := gross.Sub(deductions).Sub(tax)

	rate := decimal.Zero
	if hours.IsPositive() {
		rate = gross.Div(hours).Round(2)
	}

	itemID := generatedItemID(run.ID, workerID, itemType)
	return PayrollItem{
		ID:        itemID,
		RunID:     run.ID,
		CompanyID: run.CompanyID,
		WorkerID:  workerID,
		Type:      itemType,
		Source:    ItemSourceGenerated,
		Description: fmt.Sprintf("%s pay %s..%s",
			itemType,
			run.PeriodStart.Format("2006-01-02"),
			run.PeriodEnd.Format("2006-01-02"),
		),
		Hours:          hours,
		Rate:           rate,
		GrossAmount:    gross,
		Deductions:     deductions,
		Tax:            tax,
		NetAmount:      net,
		Status:         ItemStatusPending,
		IdempotencyKey: disbursementKey(run.ID, itemID),
	}
}

// recomputeAggregates keeps the denormalized run totals consistent with the
// current item set. Only legal while the run is editable.
func recomputeAggregates(run *PayrollRun, items []PayrollItem) {
	gross := decimal.Zero
	net := decimal.Zero
	workers := map[uuid.UUID]bool{}

	for _, item := range items {
		gross = gross.Add(item.GrossAmount)
		net = net.Add(item.NetAmount)
		workers[item.WorkerID] = true
	}

	run.GrossAmount = gross
	run.NetAmount = net
	run.TotalWorkers = len(workers)
}

func resolvePeriod(req CreateRunRequest, rules paycycle.Rules) (time.Time, time.Time, time.Time, error) {
	if req.PeriodStart == "" && req.PeriodEnd == "" {
		// No explicit period: take the cycle period closing yesterday.
		p := rules.PeriodEnding(time.Now().UTC().AddDate(0, 0, -1))
		return p.Start, p.End, p.PayDate, nil
	}

	periodStart, err := parseDate(req.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	periodEnd, err := parseDate(req.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	if periodStart.After(periodEnd) {
		return time.Time{}, time.Time{}, time.Time{}, payrunerrors.ErrInvalidDateRange
	}

	payDate := periodEnd.AddDate(0, 0, rules.PayDelayDays)
	if req.PayDate != "" {
		payDate, err = parseDate(req.PayDate)
		if err != nil {
			return time.Time{}, time.Time{}, time.Time{}, err
		}
	}

	return periodStart, periodEnd, payDate, nil
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, payrunerrors.ErrInvalidDateFormat
	}
	return t, nil
}
