package account

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/notification"
	"github.com/mockbank/mockbank/internal/session"
)

// SessionTerminator ends every session of an account.
type SessionTerminator interface {
	DestroyAllForAccount(ctx context.Context, accountNumber string) error
}

// Handler exposes account endpoints.
type Handler struct {
	service  *Service
	sessions SessionTerminator
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewHandler constructs an account HTTP handler.
func NewHandler(service *Service, sessions SessionTerminator, notifier notification.Notifier, logger *slog.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, notifier: notifier, logger: logger}
}

// Register handles customer onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("account.register completed",
			slog.String("account_number", a.AccountNumber),
			slog.String("id_type", a.IDType),
			slog.Int("status", http.StatusCreated),
		)
	}
	return c.Status(http.StatusCreated).JSON(a)
}

// Me returns the authenticated account with its current balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	a, err := h.service.Get(c.UserContext(), currentAccount(c))
	if err != nil {
		return err
	}
	return c.JSON(a)
}

// UpdateMe applies a partial profile update.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var req ProfileInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.UpdateProfile(c.UserContext(), currentAccount(c), req)
	if err != nil {
		return err
	}
	h.notify(c.UserContext(), notification.KindProfileUpdated, a.AccountNumber, "profile updated", a.Balance)
	return c.JSON(a)
}

// DeleteMe closes the account, removes its history and logs out every session.
func (h *Handler) DeleteMe(c *fiber.Ctx) error {
	number := currentAccount(c)
	if err := h.service.Delete(c.UserContext(), number); err != nil {
		return err
	}
	if h.sessions != nil {
		if err := h.sessions.DestroyAllForAccount(c.UserContext(), number); err != nil {
			return err
		}
	}
	h.notify(c.UserContext(), notification.KindAccountDeleted, number, "account deleted", 0)
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) notify(ctx context.Context, kind, number, body string, balance int64) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Send(ctx, notification.Message{Kind: kind, Destination: number, Body: body, Balance: balance}); err != nil && h.logger != nil {
		h.logger.Warn("notify failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

func currentAccount(c *fiber.Ctx) string {
	number, _ := c.Locals(session.LocalAccountNumber).(string)
	return number
}
