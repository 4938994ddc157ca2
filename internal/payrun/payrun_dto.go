package payrun

import (
	"github.com/shopspring/decimal"
)

type CreateRunRequest struct {
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`
	PayDate     string  `json:"pay_date"`
	Notes       *string `json:"notes"`
}

type RejectRunRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type AddItemRequest struct {
	WorkerID    string          `json:"worker_id" binding:"required,uuid"`
	Type        string          `json:"type" binding:"required"`
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	GrossAmount decimal.Decimal `json:"gross_amount" binding:"required"`
	Deductions  decimal.Decimal `json:"deductions"`
	Tax         decimal.Decimal `json:"tax"`
}

type RunResponse struct {
	ID              string  `json:"id"`
	CompanyID       string  `json:"company_id"`
	Reference       string  `json:"reference"`
	PeriodStart     string  `json:"period_start"`
	PeriodEnd       string  `json:"period_end"`
	PayDate         string  `json:"pay_date"`
	Status          string  `json:"status"`
	Notes           *string `json:"notes,omitempty"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	TotalWorkers    int     `json:"total_workers"`
	CreatedBy       string  `json:"created_by"`
	ApprovedBy      *string `json:"approved_by,omitempty"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	ProcessingStartedAt *string `json:"processing_started_at,omitempty"`
	CompletedAt         *string `json:"completed_at,omitempty"`
}

type ItemResponse struct {
	ID             string          `json:"id"`
	RunID          string          `json:"run_id"`
	WorkerID       string          `json:"worker_id"`
	Type           string          `json:"type"`
	Source         string          `json:"source"`
	Description    string          `json:"description,omitempty"`
	Hours          decimal.Decimal `json:"hours"`
	Rate           decimal.Decimal `json:"rate"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	Deductions     decimal.Decimal `json:"deductions"`
	Tax            decimal.Decimal `json:"tax"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	Status         string          `json:"status"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
	GatewayRef     *string         `json:"gateway_reference,omitempty"`
	ProcessedAt    *string         `json:"processed_at,omitempty"`
}

type ProgressResponse struct {
	RunID         string           `json:"run_id"`
	Reference     string           `json:"reference"`
	RunStatus     string           `json:"run_status"`
	TotalItems    int64            `json:"total_items"`
	Counts        map[string]int64 `json:"counts"`
	CompletionPct float64          `json:"completion_pct"`
}

type WorkerSummary struct {
	WorkerID    string          `json:"worker_id"`
	WorkerName  string          `json:"worker_name,omitempty"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Deductions  decimal.Decimal `json:"deductions"`
	Tax         decimal.Decimal `json:"tax"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	Items       []ItemResponse  `json:"items"`
}

type TypeSummary struct {
	Type        string          `json:"type"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

type SummaryTotals struct {
	Workers     int             `json:"workers"`
	Items       int             `json:"items"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Deductions  decimal.Decimal `json:"deductions"`
	Tax         decimal.Decimal `json:"tax"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

type RunSummaryResponse struct {
	Run     RunResponse     `json:"run"`
	Workers []WorkerSummary `json:"workers"`
	ByType  []TypeSummary   `json:"by_type"`
	Totals  SummaryTotals   `json:"totals"`
}
