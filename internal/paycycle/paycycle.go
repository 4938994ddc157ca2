// Package paycycle supplies pay-cycle rules to the payroll engine. Rules are
// an explicit input to run creation and item aggregation, never ambient
// state: the engine receives them as a parameter and stays deterministic.
package paycycle

import (
	"context"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CycleWeekly   = "weekly"
	CycleBiweekly = "biweekly"
	CycleMonthly  = "monthly"
)

// Rules carries the per-company cycle configuration: cadence, the flat
// deduction and withholding rates applied during aggregation, and how long
// after period end the pay date falls. Tax-table computation is out of
// scope; the rates here are the contracted flat percentages.
type Rules struct {
	Cycle              string
	Currency           string
	OvertimeMultiplier decimal.Decimal
	DeductionRate      decimal.Decimal
	TaxRate            decimal.Decimal
	PayDelayDays       int
}

// Period is a resolved pay period with its suggested pay date.
type Period struct {
	Start   time.Time
	End     time.Time
	PayDate time.Time
}

//go:generate mockgen -source=paycycle.go -destination=mock/paycycle_mock.go -package=mock
type Provider interface {
	Resolve(ctx context.Context, companyID string) (Rules, error)
}

// PeriodEnding computes the pay period that closes on the given date.
func (r Rules) PeriodEnding(end time.Time) Period {
	end = truncateToDay(end)
	var start time.Time
	switch r.Cycle {
	case CycleWeekly:
		start = end.AddDate(0, 0, -6)
	case CycleBiweekly:
		start = end.AddDate(0, 0, -13)
	default:
		start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return Period{
		Start:   start,
		End:     end,
		PayDate: end.AddDate(0, 0, r.PayDelayDays),
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type envProvider struct {
	defaults Rules
}

// NewEnvProvider builds a provider backed by environment configuration.
// Per-company overrides live with the company service; this process only
// needs the platform defaults.
func NewEnvProvider() Provider {
	cycle := os.Getenv("PAYCYCLE_DEFAULT")
	switch cycle {
	case CycleWeekly, CycleBiweekly, CycleMonthly:
	default:
		cycle = CycleBiweekly
	}

	currency := os.Getenv("PAYCYCLE_CURRENCY")
	if currency == "" {
		currency = "USD"
	}

	return &envProvider{
		defaults: Rules{
			Cycle:              cycle,
			Currency:           currency,
			OvertimeMultiplier: decimalEnv("PAYCYCLE_OVERTIME_MULTIPLIER", "1.5"),
			DeductionRate:      decimalEnv("PAYCYCLE_DEDUCTION_RATE", "0.05"),
			TaxRate:            decimalEnv("PAYCYCLE_TAX_RATE", "0.10"),
			PayDelayDays:       3,
		},
	}
}

func (p *envProvider) Resolve(ctx context.Context, companyID string) (Rules, error) {
	return p.defaults, nil
}

func decimalEnv(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(fallback)
	return d
}
