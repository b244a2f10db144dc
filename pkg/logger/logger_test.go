package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestMaskingHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.With(slog.String("token", "123:abc")).Info("registered",
		slog.String("phone_number", "+79990000000"),
		slog.String("bank", "tinkoff"),
		slog.Group("db", slog.String("password", "hunter2"), slog.String("host", "db")),
	)

	entry := decodeLine(t, &buf)
	assert.Equal(t, maskedValue, entry["token"])
	assert.Equal(t, maskedValue, entry["phone_number"])
	assert.Equal(t, "tinkoff", entry["bank"])

	db, ok := entry["db"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, maskedValue, db["password"])
	assert.Equal(t, "db", db["host"])
}

func TestContextHandlerAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(contextHandler{next: slog.NewJSONHandler(&buf, nil)})

	ctx := WithCorrelationID(context.Background(), "req-1")
	log.InfoContext(ctx, "hello")

	assert.Equal(t, "req-1", decodeLine(t, &buf)["correlation_id"])
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(CorrelationHeader, "given")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "given", seen)
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.Error(t, SetLevel("loud"))
}
