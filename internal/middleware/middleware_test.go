package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/apperror"
	"github.com/mockbank/mockbank/internal/auth"
	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/logging"
	"github.com/mockbank/mockbank/internal/session"
)

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	attempt := func(idNumber string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"id_type":"cc","id_number":"`+idNumber+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, attempt("12345678"))
	assert.Equal(t, fiber.StatusOK, attempt("12345678"))
	assert.Equal(t, fiber.StatusTooManyRequests, attempt("12345678"))
	assert.Equal(t, fiber.StatusOK, attempt("87654321"), "other identifications are unaffected")
	assert.Equal(t, "3", mustGet(t, mr, "rl:login:CC:12345678"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, fiber.StatusOK, attempt("12345678"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(requestIDHeader), 36)
}

func TestSessionAuth(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	accounts := account.NewService(account.NewMemoryRepository(), ledger.NewInMemory(), account.WithHashCost(bcrypt.MinCost))
	guard := session.NewGuard(session.NewMemoryStore(), 30*time.Minute, session.WithClock(clock))
	svc := auth.NewService(accounts, guard, auth.Settings{Secret: []byte("s"), AccessTTL: 12 * time.Hour}, auth.WithClock(clock))

	ctx := context.Background()
	_, err := accounts.Register(ctx, account.RegisterInput{
		IDType: "CC", IDNumber: "12345678", FirstName: "Ana", LastName: "Gomez", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)
	login, err := svc.Login(ctx, "CC", "12345678", "secret123")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: apperror.Handler(logging.Discard())})
	app.Use(Audit(logging.Discard()))
	app.Get("/me", SessionAuth(svc, guard), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(session.LocalAccountNumber).(string))
	})

	call := func(token string) int {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, call(""))
	assert.Equal(t, fiber.StatusUnauthorized, call("garbage"))
	assert.Equal(t, fiber.StatusOK, call(login.AccessToken))

	// activity at T+20 keeps the session alive at T+40
	now = now.Add(20 * time.Minute)
	assert.Equal(t, fiber.StatusOK, call(login.AccessToken))
	now = now.Add(20 * time.Minute)
	assert.Equal(t, fiber.StatusOK, call(login.AccessToken))

	now = now.Add(31 * time.Minute)
	assert.Equal(t, fiber.StatusUnauthorized, call(login.AccessToken))
	assert.Equal(t, session.Anonymous, guard.State(ctx, login.Session.ID), "expired sessions are cleared")
}
