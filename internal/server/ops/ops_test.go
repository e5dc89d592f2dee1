package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthz(t *testing.T) {
	h := NewRouter(zap.NewNop(), Check{Name: "db", Ping: func(context.Context) error { return errors.New("down") }})
	rec, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadyz(t *testing.T) {
	ok := Check{Name: "db", Ping: func(context.Context) error { return nil }}
	bad := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	rec, body := get(t, NewRouter(zap.NewNop(), ok), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = get(t, NewRouter(zap.NewNop(), ok, bad), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
	failed, _ := body["failed"].(map[string]any)
	require.Contains(t, failed, "redis")
	assert.NotContains(t, failed, "db")
	assert.Equal(t, "connection refused", failed["redis"])
}

func TestReadyz_NoChecks(t *testing.T) {
	rec, _ := get(t, NewRouter(zap.NewNop()), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyz_PingSeesDeadline(t *testing.T) {
	var hasDeadline bool
	c := Check{Name: "db", Ping: func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}}
	get(t, NewRouter(zap.NewNop(), c), "/readyz")
	assert.True(t, hasDeadline)
}
