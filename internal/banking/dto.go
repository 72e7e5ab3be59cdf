package banking

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mockbank/mockbank/internal/ledger"
)

// OperationRequest is the body accepted by deposit and withdrawal endpoints.
// Amount accepts a JSON number or string in whole currency units.
type OperationRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	ClientTxID string          `json:"client_tx_id"`
}

// BillPaymentRequest adds the utility being paid.
type BillPaymentRequest struct {
	OperationRequest
	Service string `json:"service"`
}

// OperationResponse is returned after a committed or replayed operation.
type OperationResponse struct {
	TransactionID string      `json:"transaction_id"`
	Type          ledger.Type `json:"type"`
	Memo          string      `json:"memo"`
	Amount        int64       `json:"amount"`
	Reference     string      `json:"reference"`
	Balance       int64       `json:"balance"`
	CreatedAt     string      `json:"created_at"`
	Replayed      bool        `json:"replayed"`
}

func toResponse(r Result) OperationResponse {
	return OperationResponse{
		TransactionID: strconv.FormatInt(r.Transaction.ID.Int64(), 10),
		Type:          r.Transaction.Type,
		Memo:          r.Transaction.Memo,
		Amount:        r.Transaction.Amount,
		Reference:     r.Transaction.Reference,
		Balance:       r.Balance,
		CreatedAt:     r.Transaction.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Replayed:      r.Replayed,
	}
}
