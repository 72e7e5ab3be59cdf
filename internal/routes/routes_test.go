package routes_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockbank/mockbank/internal/apperror"
	"github.com/mockbank/mockbank/internal/config"
	"github.com/mockbank/mockbank/internal/logging"
	"github.com/mockbank/mockbank/internal/routes"
	"github.com/mockbank/mockbank/internal/seed"
)

func testConfig() config.Config {
	return config.Config{
		AppName:                "MockBank",
		AppEnv:                 "test",
		JWTSecret:              "routes-test-secret",
		AccessTokenTTL:         time.Hour,
		RecoveryTokenTTL:       10 * time.Minute,
		SessionWindow:          30 * time.Minute,
		IdempotencyTTL:         time.Hour,
		Timezone:               "America/Bogota",
		MaxTransactionAmount:   10_000_000,
		DailyTransactionLimit:  50_000_000,
		LoginAttemptsPerMinute: 5,
		StatementConcurrency:   2,
		SnowflakeNode:          1,
	}
}

func newApp(t *testing.T, d routes.Deps) *fiber.App {
	t.Helper()
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	app := fiber.New(fiber.Config{ErrorHandler: apperror.Handler(d.Logger)})
	_, err := routes.Setup(app, d)
	require.NoError(t, err)
	return app
}

type call struct {
	method, path, token, body string
	headers                   map[string]string
}

func do(t *testing.T, app *fiber.App, c call) (*http.Response, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, 10_000)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	} else {
		out["raw"] = string(raw)
	}
	return resp, out
}

func login(t *testing.T, app *fiber.App, idType, idNumber, password string) string {
	t.Helper()
	resp, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/login",
		body: `{"id_type":"` + idType + `","id_number":"` + idNumber + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestBankingFlowInMemory(t *testing.T) {
	app := newApp(t, routes.Deps{Cfg: testConfig()})

	resp, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/accounts",
		body: `{"id_type":"CC","id_number":"1020304050","first_name":"Marta","last_name":"Lopez","email":"marta@example.com","password":"secret1"}`})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Len(t, body["account_number"], 10)
	assert.EqualValues(t, 0, body["balance"])

	resp, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/accounts",
		body: `{"id_type":"CC","id_number":"1020304050","first_name":"Marta","last_name":"Lopez","email":"marta@example.com","password":"secret1"}`})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	token := login(t, app, "CC", "1020304050", "secret1")

	resp, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/me/deposits", token: token, body: `{"amount":100000}`})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 100000, body["balance"])
	assert.Equal(t, "Electronic channel deposit", body["memo"])

	resp, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/me/withdrawals", token: token, body: `{"amount":"30000"}`})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 70000, body["balance"])

	resp, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/me/withdrawals", token: token, body: `{"amount":1000000}`})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_funds", body["code"])

	resp, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/me/bill-payments", token: token, body: `{"amount":20000,"service":"Water"}`})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 50000, body["balance"])

	resp, body = do(t, app, call{method: http.MethodGet, path: "/api/v1/me/transactions", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["transactions"], 3)

	resp, body = do(t, app, call{method: http.MethodGet, path: "/api/v1/session", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := body["session"].(map[string]any)["snapshot"].(map[string]any)
	assert.EqualValues(t, 50000, snap["balance"])

	resp, body = do(t, app, call{method: http.MethodGet, path: "/api/v1/me/statement.pdf", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	assert.True(t, strings.HasPrefix(body["raw"].(string), "%PDF-"))

	resp, _ = do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/logout", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, app, call{method: http.MethodGet, path: "/api/v1/me", token: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, body)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newApp(t, routes.Deps{Cfg: testConfig()})

	resp, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/me"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["code"])

	resp, _ = do(t, app, call{method: http.MethodGet, path: "/api/v1/ping"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeleteAccountEndsSessions(t *testing.T) {
	s := seed.Default()
	app := newApp(t, routes.Deps{Cfg: testConfig(), Seed: &s})

	first := login(t, app, "CC", "12345678", "demo1234")
	second := login(t, app, "CC", "12345678", "demo1234")

	resp, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/me", token: first})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1_500_000, body["balance"])

	resp, _ = do(t, app, call{method: http.MethodDelete, path: "/api/v1/me", token: first})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, app, call{method: http.MethodGet, path: "/api/v1/me", token: second})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/login",
		body: `{"id_type":"CC","id_number":"12345678","password":"demo1234"}`})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, body)
}

func TestRedisBackedIdempotentDeposit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	s := seed.Default()
	app := newApp(t, routes.Deps{Cfg: testConfig(), Cache: cache, Seed: &s})
	token := login(t, app, "CE", "98765432", "demo1234")

	deposit := call{method: http.MethodPost, path: "/api/v1/me/deposits", token: token, body: `{"amount":5000}`,
		headers: map[string]string{"Idempotency-Key": "dep-1"}}
	resp, first := do(t, app, deposit)
	require.Equal(t, http.StatusCreated, resp.StatusCode, first)
	assert.EqualValues(t, 255_000, first["balance"])

	resp, again := do(t, app, deposit)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, first["reference"], again["reference"])

	resp, body := do(t, app, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := body["status"].(map[string]any)
	assert.Equal(t, "memory", status["postgres"])
	assert.Equal(t, "ok", status["redis"])
	assert.Equal(t, "closed", status["notifier"])
}

func TestSetupRequiresBackendsOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	_, err := routes.Setup(fiber.New(), routes.Deps{Cfg: cfg, Logger: logging.Discard()})
	assert.ErrorContains(t, err, "database is required")
}

func TestMalformedPeriodIsRejected(t *testing.T) {
	s := seed.Default()
	app := newApp(t, routes.Deps{Cfg: testConfig(), Seed: &s})
	token := login(t, app, "CC", "12345678", "demo1234")

	for _, path := range []string{
		"/api/v1/me/transactions?year=abc",
		"/api/v1/me/transactions?limit=ten",
		"/api/v1/me/statement?month=x",
		"/api/v1/me/statement.pdf?year=20x4",
	} {
		resp, body := do(t, app, call{method: http.MethodGet, path: path, token: token})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, "invalid_filter", body["code"], path)
	}

	resp, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/me/transactions?year=2024", token: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode, body)
}

func TestOverlongPasswordIsClientError(t *testing.T) {
	app := newApp(t, routes.Deps{Cfg: testConfig()})
	password := strings.Repeat("ñ", 40)

	resp, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/accounts",
		body: `{"id_type":"CC","id_number":"1020304050","first_name":"Marta","last_name":"Lopez","email":"marta@example.com","password":"` + password + `"}`})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
	assert.Equal(t, "validation_failed", body["code"])
}
