package banking

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/session"
)

// Handler exposes balance operation endpoints for the authenticated account.
type Handler struct {
	service *Service
}

// NewHandler constructs a banking handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit credits the caller's account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req OperationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	result, err := h.service.Deposit(c.UserContext(), requestFrom(c, req.ClientTxID), amount)
	if err != nil {
		return err
	}
	return respond(c, result)
}

// Withdraw debits cash from the caller's account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req OperationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	result, err := h.service.Withdraw(c.UserContext(), requestFrom(c, req.ClientTxID), amount)
	if err != nil {
		return err
	}
	return respond(c, result)
}

// PayBill pays a utility service from the caller's account.
func (h *Handler) PayBill(c *fiber.Ctx) error {
	var req BillPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	result, err := h.service.PayBill(c.UserContext(), requestFrom(c, req.ClientTxID), req.Service, amount)
	if err != nil {
		return err
	}
	return respond(c, result)
}

func respond(c *fiber.Ctx, result Result) error {
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toResponse(result))
}

// requestFrom builds the request scope; the Idempotency-Key header stands in
// for a missing client transaction id.
func requestFrom(c *fiber.Ctx, clientTxID string) Request {
	number, _ := c.Locals(session.LocalAccountNumber).(string)
	sid, _ := c.Locals(session.LocalSessionID).(string)
	if clientTxID == "" {
		clientTxID = c.Get("Idempotency-Key")
	}
	return Request{AccountNumber: number, SessionID: sid, ClientTxID: clientTxID}
}
