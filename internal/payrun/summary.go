package payrun

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Summarize builds the per-worker and per-type views used for display and
// export. Pure read: runs past draft are immutable except in-flight item
// status, so no caching layer is needed.
func (s *service) Summarize(ctx context.Context, companyID, id string) (RunSummaryResponse, error) {
	run, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return RunSummaryResponse{}, mapRepositoryError(err)
	}

	items, err := s.repo.ListItems(ctx, companyID, id)
	if err != nil {
		return RunSummaryResponse{}, err
	}

	workerIndex := map[string]int{}
	var workers []WorkerSummary
	byType := map[string]decimal.Decimal{}

	totals := SummaryTotals{}
	gross, net, deductions, tax := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero

	for _, item := range items {
		workerID := item.WorkerID.String()
		idx, ok := workerIndex[workerID]
		if !ok {
			idx = len(workers)
			workerIndex[workerID] = idx
			name := ""
			if s.resolver != nil {
				name = s.resolver.ResolveName(ctx, companyID, workerID)
			}
			workers = append(workers, WorkerSummary{
				WorkerID:   workerID,
				WorkerName: name,
			})
		}

		w := &workers[idx]
		w.GrossAmount = w.GrossAmount.Add(item.GrossAmount)
		w.Deductions = w.Deductions.Add(item.Deductions)
		w.Tax = w.Tax.Add(item.Tax)
		w.NetAmount = w.NetAmount.Add(item.NetAmount)
		w.Items = append(w.Items, mapToItemResponse(item))

		byType[item.Type] = byType[item.Type].Add(item.GrossAmount)

		gross = gross.Add(item.GrossAmount)
		net = net.Add(item.NetAmount)
		deductions = deductions.Add(item.Deductions)
		tax = tax.Add(item.Tax)
	}

	totals.Workers = len(workers)
	totals.Items = len(items)
	totals.GrossAmount = gross
	totals.NetAmount = net
	totals.Deductions = deductions
	totals.Tax = tax

	typeSummaries := make([]TypeSummary, 0, len(byType))
	for itemType, amount := range byType {
		typeSummaries = append(typeSummaries, TypeSummary{Type: itemType, GrossAmount: amount})
	}
	sort.Slice(typeSummaries, func(i, j int) bool {
		return typeSummaries[i].Type < typeSummaries[j].Type
	})

	return RunSummaryResponse{
		Run:     mapToRunResponse(*run),
		Workers: workers,
		ByType:  typeSummaries,
		Totals:  totals,
	}, nil
}
