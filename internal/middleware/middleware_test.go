package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/debtbot/internal/ratelimit"
	"github.com/Proton-105/debtbot/pkg/config"
)

func TestHTTPLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := New(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/healthz"`)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "/expense", TextLabel("/expense 100 USD pizza"))
	assert.Equal(t, "/debts", TextLabel("/debts@debt_bot"))
	assert.Equal(t, "text", TextLabel("100 USD"))
	assert.Equal(t, "unknown", TextLabel(""))

	assert.Equal(t, "cb:exp_user", CallbackLabel("exp_user:10:20"))
	assert.Equal(t, "cb:lang", CallbackLabel("lang"))
	assert.Equal(t, "unknown", CallbackLabel(""))
}

func TestChecksFor(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:  true,
		Global:   config.RateLimitRule{Limit: 30, Window: "1s"},
		PerUser:  config.RateLimitRule{Limit: 20, Window: "1m"},
		Commands: map[string]config.RateLimitRule{"expense": {Limit: 5, Window: "1m"}},
	})

	checks := checksFor(rules, 7, "/expense")
	require.Len(t, checks, 3)
	assert.Equal(t, "global", checks[0].key)
	assert.Equal(t, "user:7", checks[1].key)
	assert.Equal(t, "cmd:/expense:7", checks[2].key)
	assert.Equal(t, 5, checks[2].limit)

	assert.Len(t, checksFor(rules, 7, "/debts"), 2)
	assert.Len(t, checksFor(rules, 7, ""), 2)
}
