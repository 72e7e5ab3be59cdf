package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/banking"
	"github.com/mockbank/mockbank/internal/statement"
)

// RegisterBankingRoutes wires balance operations.
func RegisterBankingRoutes(protected fiber.Router, h *banking.Handler) {
	protected.Post("/me/deposits", h.Deposit)
	protected.Post("/me/withdrawals", h.Withdraw)
	protected.Post("/me/bill-payments", h.PayBill)
}

// RegisterStatementRoutes wires history, statements and the certificate.
func RegisterStatementRoutes(protected fiber.Router, h *statement.Handler) {
	protected.Get("/me/transactions", h.Transactions)
	protected.Get("/me/statement", h.Statement)
	protected.Get("/me/statement.pdf", h.StatementPDF)
	protected.Get("/me/certificate", h.Certificate)
}
