package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/session"
	"github.com/mockbank/mockbank/internal/validation"
)

// Handler exposes login, logout and password recovery endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	IDType   string `json:"id_type" validate:"required"`
	IDNumber string `json:"id_number" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type recoveryRequest struct {
	IDType   string `json:"id_type" validate:"required"`
	IDNumber string `json:"id_number" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

type resetRequest struct {
	RecoveryToken        string `json:"recovery_token" validate:"required"`
	Password             string `json:"password" validate:"required,min=6,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// Login validates credentials and returns an access token bound to a new session.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.UserContext(), req.IDType, req.IDNumber, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Logout ends the session named by the bearer token. Unknown or expired
// tokens are accepted so logging out is always safe to repeat.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if token := BearerToken(c); token != "" {
		if claims, err := h.svc.ParseAccessToken(token); err == nil {
			if err := h.svc.Logout(c.UserContext(), claims.SessionID); err != nil {
				return err
			}
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// VerifyRecovery starts password recovery.
func (h *Handler) VerifyRecovery(c *fiber.Ctx) error {
	var req recoveryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	ticket, err := h.svc.BeginRecovery(c.UserContext(), req.IDType, req.IDNumber, req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(ticket)
}

// ResetPassword completes password recovery.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	if err := h.svc.CompleteRecovery(c.UserContext(), req.RecoveryToken, req.Password); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "password_reset"})
}

// Session reports the caller's live session.
func (h *Handler) Session(c *fiber.Ctx) error {
	sess, ok := c.Locals(session.LocalSession).(session.Session)
	if !ok {
		return session.ErrNotFound
	}
	return c.JSON(fiber.Map{
		"state":   session.Authenticated.String(),
		"session": sess,
	})
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
