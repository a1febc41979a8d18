package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	_ "github.com/odyssey-erp/odyssey-crm/testing"
)

type staticModules []modules.Module

func (s staticModules) ListActive(ctx context.Context, filter *modules.ActorType) ([]modules.Module, error) {
	var out []modules.Module
	for _, m := range s {
		if m.Applies(filter) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s staticModules) Upsert(ctx context.Context, m modules.Module) error { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := modules.NewRegistry(staticModules{
		{Key: modules.KeyInvoices, DisplayName: "Invoices", ActorType: modules.ActorAll, Active: true},
	}, logger)
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "development", RateLimitPerMin: 1000},
		Metrics:        observability.NewMetrics(),
		ModulesHandler: modules.NewHandler(logger, registry),
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAPIRequiresActorHeaders(t *testing.T) {
	router := newTestRouter(t)
	cases := []struct {
		name    string
		company string
		user    string
		status  int
	}{
		{"no headers", "", "", http.StatusBadRequest},
		{"bad tenant", "abc", "5", http.StatusBadRequest},
		{"missing user", "7", "", http.StatusUnauthorized},
		{"system user id", "7", "0", http.StatusUnauthorized},
		{"ok", "7", "5", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/modules/", nil)
			if tc.company != "" {
				req.Header.Set(HeaderCompanyID, tc.company)
			}
			if tc.user != "" {
				req.Header.Set(HeaderUserID, tc.user)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestActorFromHeadersSetsContext(t *testing.T) {
	var got shared.Actor
	h := ActorFromHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		got = actor
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCompanyID, " 12 ")
	req.Header.Set(HeaderUserID, "34")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, shared.Actor{TenantID: 12, UserID: 34}, got)
	assert.False(t, got.IsSystem())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://crm@localhost/crm")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.NumberingMaxAttempts)
	assert.False(t, cfg.IsProduction())

	t.Setenv("NUMBERING_MAX_ATTEMPTS", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestSkipStartupFollowsTestMode(t *testing.T) {
	assert.True(t, InTestMode(), "test environment defaults not applied")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	assert.True(t, SkipStartup("worker", logger))
	assert.Contains(t, buf.String(), `"component":"worker"`)

	for _, value := range []string{"0", "false", "", "yes"} {
		t.Setenv(testModeEnv, value)
		buf.Reset()
		assert.False(t, SkipStartup("api", logger), value)
		assert.Empty(t, buf.String())
	}

	t.Setenv(testModeEnv, "true")
	assert.True(t, InTestMode())
}
