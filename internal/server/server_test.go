package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fund-session-engine/internal/database"
	"fund-session-engine/internal/models"
	"fund-session-engine/internal/monitor"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedHealth monitor.Snapshot

func (f fixedHealth) Last() monitor.Snapshot { return monitor.Snapshot(f) }

func setupEngine(t *testing.T) (*database.Service, int64) {
	t.Helper()
	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "server.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(service.Close)

	nodeId, err := service.RegisterNode(context.Background(), "edge-1", models.NodeRoleChild, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return service, nodeId
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	engine, nodeId := setupEngine(t)
	ctx := context.Background()

	s := New(Config{Store: engine, NodeId: nodeId})
	w, body := get(t, s, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "edge-1", body["name"])
	assert.Equal(t, "inactive", body["node_status"])
	assert.NotContains(t, body, "failure_rate")

	require.NoError(t, engine.SetNodeStatus(ctx, nodeId, models.NodeStatusError))
	s = New(Config{Store: engine, NodeId: nodeId, Health: fixedHealth{
		Status:            models.NodeStatusError,
		ActiveConnections: 2,
		Rate:              models.FailureRate{Attempts: 4, Failures: 3},
		Degraded:          true,
	}})
	w, body = get(t, s, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, float64(2), body["active_connections"])
	assert.Equal(t, 0.75, body["failure_rate"])
}

func TestHealth_UnknownNode(t *testing.T) {
	engine, _ := setupEngine(t)

	w, body := get(t, New(Config{Store: engine, NodeId: 99}), "/health")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body, "error")
}

func TestLogs(t *testing.T) {
	engine, nodeId := setupEngine(t)
	ctx := context.Background()

	_, err := engine.AppendLog(ctx, nodeId, models.LogLevelInfo, "node started", models.Blob(`{"version":"1.0.0"}`))
	require.NoError(t, err)
	_, err = engine.AppendLog(ctx, nodeId, models.LogLevelError, "disk full", nil)
	require.NoError(t, err)

	s := New(Config{Store: engine, NodeId: nodeId})

	w, body := get(t, s, "/logs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])
	logs := body["logs"].([]any)
	first := logs[0].(map[string]any)
	assert.Equal(t, "node started", first["message"])
	assert.Equal(t, `{"version":"1.0.0"}`, first["content"])

	w, body = get(t, s, "/logs?level=warn")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, body = get(t, s, "/logs?since="+time.Now().UTC().Add(time.Hour).Format(time.RFC3339))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, body["logs"])

	w, _ = get(t, s, "/logs?level=TRACE")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get(t, s, "/logs?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnections(t *testing.T) {
	engine, nodeId := setupEngine(t)
	ctx := context.Background()

	first, err := engine.OpenConnection(ctx, nodeId, "10.0.0.1:5000")
	require.NoError(t, err)
	_, err = engine.OpenConnection(ctx, nodeId, "10.0.0.2:5000")
	require.NoError(t, err)
	require.NoError(t, engine.CloseConnection(ctx, first))

	w, body := get(t, New(Config{Store: engine, NodeId: nodeId}), "/connections")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	conn := body["connections"].([]any)[0].(map[string]any)
	assert.Equal(t, "10.0.0.2:5000", conn["address"])
}

func TestStartShutdown(t *testing.T) {
	engine, nodeId := setupEngine(t)

	s := New(Config{Addr: "127.0.0.1:0", Store: engine, NodeId: nodeId})
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
