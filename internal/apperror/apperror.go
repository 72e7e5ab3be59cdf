// Package apperror maps domain errors onto HTTP responses.
package apperror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/auth"
	"github.com/mockbank/mockbank/internal/banking"
	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/session"
	"github.com/mockbank/mockbank/internal/snapshot"
	"github.com/mockbank/mockbank/internal/statement"
	"github.com/mockbank/mockbank/internal/validation"
)

// Response is the JSON body rendered for every failed request.
type Response struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type mapping struct {
	target error
	status int
	code   string
}

var mappings = []mapping{
	{ledger.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ledger.ErrInvalidFilter, http.StatusBadRequest, "invalid_filter"},
	{ledger.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{banking.ErrLimitExceeded, http.StatusUnprocessableEntity, "limit_exceeded"},
	{banking.ErrInvalidService, http.StatusBadRequest, "invalid_service"},
	{account.ErrDuplicateAccount, http.StatusConflict, "duplicate_account"},
	{account.ErrNotFound, http.StatusNotFound, "account_not_found"},
	{account.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{account.ErrRecoveryMismatch, http.StatusUnauthorized, "recovery_mismatch"},
	{account.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{account.ErrPasswordTooLong, http.StatusBadRequest, "password_too_long"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{session.ErrExpired, http.StatusUnauthorized, "session_expired"},
	{session.ErrNotFound, http.StatusUnauthorized, "unauthenticated"},
	{statement.ErrBusy, http.StatusServiceUnavailable, "busy"},
	{snapshot.ErrStoreCorruption, http.StatusInternalServerError, "store_corruption"},
}

// Status returns the HTTP status and machine-readable code for err.
func Status(err error) (int, string) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, "validation_failed"
	}
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code, codeForStatus(ferr.Code)
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// Render converts err into a Response; internal failures hide their message.
func Render(err error) (int, Response) {
	status, code := Status(err)
	resp := Response{Code: code, Message: err.Error()}
	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Details = verr.Fields
	}
	if status == http.StatusInternalServerError && code == "internal_error" {
		resp.Message = "internal server error"
	}
	return status, resp
}

// Handler is the Fiber error handler used by the API.
func Handler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, resp := Render(err)
		if status >= http.StatusInternalServerError && logger != nil {
			reqID, _ := c.Locals("X-Request-ID").(string)
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", reqID),
				slog.String("error", err.Error()),
			)
		}
		return c.Status(status).JSON(resp)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "error"
	}
}
