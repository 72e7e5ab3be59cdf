package statement

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/session"
)

// Handler exposes history, statement and certificate endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Transactions lists entries; without a period it returns the most recent ones.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	year, month, err := period(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	if year == 0 && month == 0 && limit == 0 {
		limit = ledger.DefaultRecentLimit
	}
	txs, err := h.svc.History(c.UserContext(), accountNumber(c), year, month, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// Statement returns the period statement as JSON.
func (h *Handler) Statement(c *fiber.Ctx) error {
	year, month, err := period(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Statement(c.UserContext(), accountNumber(c), year, month)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// StatementPDF streams the period statement as a PDF download.
func (h *Handler) StatementPDF(c *fiber.Ctx) error {
	year, month, err := period(c)
	if err != nil {
		return err
	}
	number := accountNumber(c)
	var buf bytes.Buffer
	if err := h.svc.RenderPDF(c.UserContext(), &buf, number, year, month); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, number))
	return c.Status(http.StatusOK).Send(buf.Bytes())
}

// Certificate returns the account certificate.
func (h *Handler) Certificate(c *fiber.Ctx) error {
	cert, err := h.svc.Certificate(c.UserContext(), accountNumber(c))
	if err != nil {
		return err
	}
	return c.JSON(cert)
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ledger.ErrInvalidFilter, key, raw)
	}
	return n, nil
}

func period(c *fiber.Ctx) (year, month int, err error) {
	if year, err = queryInt(c, "year"); err != nil {
		return 0, 0, err
	}
	month, err = queryInt(c, "month")
	return year, month, err
}

func accountNumber(c *fiber.Ctx) string {
	number, _ := c.Locals(session.LocalAccountNumber).(string)
	return number
}
