package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/shared"
	"github.com/factorybooks/factorybooks/internal/testing/guard"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("REDIS_ADDR", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return cfg
}

func newTestServices(t *testing.T) *Services {
	t.Helper()
	services, err := Build(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Close() })
	return services
}

func TestGuardBlocksStartup(t *testing.T) {
	cfg := testConfig(t)
	require.True(t, cfg.TestMode)
	require.False(t, cfg.StartupAllowed(slog.New(slog.NewTextHandler(io.Discard, nil)), "worker"))

	t.Setenv(guard.Env, "0")
	cfg = testConfig(t)
	require.True(t, cfg.StartupAllowed(nil, "worker"))
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":         "mongo",
		"POSTING_JOURNAL_MODE": "eventual",
		"OUTBOX_MAX_ATTEMPTS":  "0",
		"OUTBOX_BASE_BACKOFF":  "20m",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestPostingConfigFromEnv(t *testing.T) {
	t.Setenv("POSTING_JOURNAL_MODE", "outbox")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "4")
	cfg := testConfig(t)
	pc := cfg.PostingConfig()
	require.Equal(t, "outbox", string(pc.JournalMode))
	require.Equal(t, 4, pc.MaxAttempts)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{AppEnv: "production"}, &buf).Info("hello")
	require.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), buf.String())

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty"}, &buf).Info("hello")
	require.Contains(t, buf.String(), "msg=hello")
}

func TestActorMiddleware(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "u-7")
	req.Header.Set(HeaderActorEmail, "clerk@example.com")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, shared.Actor{ID: "u-7", Email: "clerk@example.com"}, got)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, shared.System, got)
}

func TestRouterEndToEnd(t *testing.T) {
	services := newTestServices(t)
	router := NewRouterFromServices(services)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderActorID, "u-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("X-RateLimit-Limit"))

	rr = do(http.MethodPost, "/api/v1/transactions", `{
		"transactionId": "TX-APP-1",
		"type": "income",
		"category": "Sales",
		"amount": "1000",
		"isARAPEntry": true,
		"associatedParty": "Acme",
		"initialPayment": {"amount": "250", "method": "cash"}
	}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(http.MethodGet, "/api/v1/parties/Acme/balance", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var balance struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &balance))
	require.True(t, balance.Balance.Equal(decimal.NewFromInt(750)), balance.Balance.String())

	rr = do(http.MethodGet, "/api/v1/reports/integrity", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(http.MethodGet, "/api/v1/inventory/items", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodGet, "/api/v1/jobs/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `factorybooks_postings_total{operation="post",outcome="ok"} 1`)
}
