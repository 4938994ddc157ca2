// Package gateway defines the disbursement gateway contract. The gateway
// moves real money; it must be idempotent for a repeated idempotency key so
// a retried request can never pay a worker twice.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type Request struct {
	Destination    string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// Result is the gateway's business answer. Declined is an ordinary outcome
// recorded on the item, not a Go error; transport problems are errors.
type Result struct {
	Declined  bool
	Reason    string
	Reference string
}

//go:generate mockgen -source=gateway.go -destination=mock/gateway_mock.go -package=mock
type Gateway interface {
	Send(ctx context.Context, req Request) (Result, error)
}
