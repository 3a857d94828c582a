package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fund-session-engine/internal/database"
	"fund-session-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) *database.Service {
	t.Helper()
	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "monitor.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(service.Close)
	return service
}

func logMessages(t *testing.T, s *database.Service, nodeId int64) []string {
	t.Helper()
	var messages []string
	for entry, err := range s.QueryLogs(context.Background(), nodeId, models.LogFilter{}) {
		require.NoError(t, err)
		messages = append(messages, entry.Message)
	}
	return messages
}

func TestHealthMonitor_DegradesAndRecovers(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	nodeId, err := engine.RegisterNode(ctx, "edge-1", models.NodeRoleChild, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	require.NoError(t, engine.SetNodeStatus(ctx, nodeId, models.NodeStatusActive))

	connId, err := engine.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	monitor := NewHealthMonitor(HealthMonitorConfig{
		Store:            engine,
		NodeId:           nodeId,
		PollingInterval:  time.Hour,
		LookbackWindow:   time.Hour,
		FailureThreshold: 0.5,
		MinAttempts:      2,
	})

	// One failure is below the minimum sample size.
	_, err = engine.RecordAttempt(ctx, connId, false, nil)
	require.NoError(t, err)
	snapshot, err := monitor.Check(ctx)
	require.NoError(t, err)
	assert.False(t, snapshot.Degraded)
	assert.Equal(t, models.NodeStatusActive, snapshot.Status)
	assert.Equal(t, 1, snapshot.ActiveConnections)

	_, err = engine.RecordAttempt(ctx, connId, false, nil)
	require.NoError(t, err)
	snapshot, err = monitor.Check(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.Degraded)
	assert.Equal(t, models.NodeStatusError, snapshot.Status)

	node, err := engine.GetNode(ctx, nodeId)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusError, node.Status)

	// A repeated degraded check does not log again.
	_, err = monitor.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth failure rate above threshold"}, logMessages(t, engine, nodeId))

	for range 3 {
		_, err = engine.RecordAttempt(ctx, connId, true, nil)
		require.NoError(t, err)
	}
	snapshot, err = monitor.Check(ctx)
	require.NoError(t, err)
	assert.False(t, snapshot.Degraded)
	assert.Equal(t, models.NodeStatusActive, snapshot.Status)
	assert.Equal(t, snapshot, monitor.Last())

	assert.Equal(t, []string{
		"auth failure rate above threshold",
		"auth failure rate recovered",
	}, logMessages(t, engine, nodeId))
}

func TestHealthMonitor_LeavesMaintenanceAlone(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	nodeId, err := engine.RegisterNode(ctx, "edge-1", models.NodeRoleChild, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	require.NoError(t, engine.SetNodeStatus(ctx, nodeId, models.NodeStatusMaintenance))

	connId, err := engine.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)
	for range 3 {
		_, err = engine.RecordAttempt(ctx, connId, false, nil)
		require.NoError(t, err)
	}

	monitor := NewHealthMonitor(HealthMonitorConfig{
		Store:            engine,
		NodeId:           nodeId,
		PollingInterval:  time.Hour,
		FailureThreshold: 0.1,
		MinAttempts:      1,
	})
	snapshot, err := monitor.Check(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.Degraded)
	assert.Equal(t, models.NodeStatusMaintenance, snapshot.Status)
	assert.Empty(t, logMessages(t, engine, nodeId))
}

func TestHealthMonitor_StartStop(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	monitor := NewHealthMonitor(HealthMonitorConfig{Store: engine, NodeId: 99, PollingInterval: time.Millisecond})
	assert.Error(t, monitor.Start(ctx), "unknown node fails the initial check")
	monitor.Stop()

	nodeId, err := engine.RegisterNode(ctx, "edge-1", models.NodeRoleChild, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	monitor = NewHealthMonitor(HealthMonitorConfig{Store: engine, NodeId: nodeId, PollingInterval: 10 * time.Millisecond, FailureThreshold: 0.5})
	require.NoError(t, monitor.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()
	monitor.Stop()

	assert.Equal(t, models.NodeStatusInactive, monitor.Last().Status)
}

func TestHealthMonitor_StopFromAnotherGoroutine(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	nodeId, err := engine.RegisterNode(ctx, "edge-1", models.NodeRoleChild, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	monitor := NewHealthMonitor(HealthMonitorConfig{Store: engine, NodeId: nodeId, PollingInterval: 5 * time.Millisecond})
	started := make(chan error, 1)
	go func() { started <- monitor.Start(ctx) }()
	require.NoError(t, <-started)

	done := make(chan struct{})
	go func() {
		monitor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
