package payrun

import (
	"context"
	"math"
)

// GetProgress is the read side the operator UI polls while an executor is
// running. It is one aggregate query over item statuses: no locks, no
// coordination with the writer, always a consistent point-in-time snapshot
// (possibly mid-batch).
func (s *service) GetProgress(ctx context.Context, companyID, id string) (ProgressResponse, error) {
	run, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		return ProgressResponse{}, mapRepositoryError(err)
	}

	counts, err := s.repo.CountItemsByStatus(ctx, companyID, id)
	if err != nil {
		return ProgressResponse{}, err
	}

	resp := ProgressResponse{
		RunID:     run.ID.String(),
		Reference: run.Reference,
		RunStatus: run.Status,
		Counts: map[string]int64{
			ItemStatusPending:  0,
			ItemStatusApproved: 0,
			ItemStatusPaid:     0,
			ItemStatusFailed:   0,
		},
	}

	var total, terminal int64
	for _, c := range counts {
		resp.Counts[c.Status] = c.Count
		total += c.Count
		if c.Status == ItemStatusPaid || c.Status == ItemStatusFailed {
			terminal += c.Count
		}
	}

	resp.TotalItems = total
	if total > 0 {
		resp.CompletionPct = math.Round(float64(terminal)/float64(total)*1000) / 10
	}

	return resp, nil
}
