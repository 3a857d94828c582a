package database

import (
	"context"
	"testing"
	"time"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttempt_SnapshotsConnection(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	content := models.Blob(`{"method":"password"}`)
	reqId, err := service.RecordAttempt(ctx, connId, false, content)
	require.NoError(t, err)

	req, err := service.GetAuthRequest(ctx, reqId)
	require.NoError(t, err)
	assert.Equal(t, connId, req.ConnectionId)
	assert.Equal(t, nodeId, req.NodeId)
	assert.Equal(t, "10.0.0.5", req.Address)
	assert.False(t, req.Success)
	assert.Equal(t, content, req.Content)

	// Attempts are allowed on closed connections and keep their snapshot.
	require.NoError(t, service.CloseConnection(ctx, connId))
	secondId, err := service.RecordAttempt(ctx, connId, true, nil)
	require.NoError(t, err)

	second, err := service.GetAuthRequest(ctx, secondId)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", second.Address)
	assert.Equal(t, models.EmptyBlob, second.Content)

	requests, err := service.ListAuthRequests(ctx, connId)
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, reqId, requests[0].Id)
	assert.Equal(t, secondId, requests[1].Id)

	_, err = service.RecordAttempt(ctx, connId+1, true, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordAttempt_RowsAreImmutable(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)
	reqId, err := service.RecordAttempt(ctx, connId, false, nil)
	require.NoError(t, err)

	_, err = service.db.ExecContext(ctx, "UPDATE auth_requests SET result = 1 WHERE id = ?", reqId)
	require.Error(t, err)
	assert.ErrorIs(t, classifyError(err), store.ErrConstraintViolation)

	req, err := service.GetAuthRequest(ctx, reqId)
	require.NoError(t, err)
	assert.False(t, req.Success)
}

func TestFailureRate(t *testing.T) {
	start := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newStepClock(start)
	service := setupTestDb(t, WithClock(clock.Now))
	ctx := context.Background()

	nodeA := mustRegisterNode(t, service, "edge-a", models.NodeRoleChild, uuidA)
	nodeB := mustRegisterNode(t, service, "edge-b", models.NodeRoleChild, uuidB)

	connA, err := service.OpenConnection(ctx, nodeA, "10.0.0.1")
	require.NoError(t, err)
	connB, err := service.OpenConnection(ctx, nodeB, "10.0.0.2")
	require.NoError(t, err)

	var attemptTimes []time.Time
	for _, success := range []bool{false, true, false, true} {
		id, err := service.RecordAttempt(ctx, connA, success, nil)
		require.NoError(t, err)
		req, err := service.GetAuthRequest(ctx, id)
		require.NoError(t, err)
		attemptTimes = append(attemptTimes, req.CreatedAt)
	}
	_, err = service.RecordAttempt(ctx, connB, false, nil)
	require.NoError(t, err)

	rate, err := service.FailureRate(ctx, nodeA, models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, models.FailureRate{Attempts: 4, Failures: 2}, rate)
	assert.InDelta(t, 0.5, rate.Rate(), 1e-9)

	// Half-open: From is included, To is excluded.
	rate, err = service.FailureRate(ctx, nodeA, models.TimeWindow{From: attemptTimes[1], To: attemptTimes[3]})
	require.NoError(t, err)
	assert.Equal(t, models.FailureRate{Attempts: 2, Failures: 1}, rate)

	rate, err = service.FailureRate(ctx, nodeA, models.TimeWindow{From: attemptTimes[3]})
	require.NoError(t, err)
	assert.Equal(t, models.FailureRate{Attempts: 1, Failures: 0}, rate)

	rate, err = service.FailureRate(ctx, nodeB+100, models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, models.FailureRate{}, rate)
	assert.Zero(t, rate.Rate())
}
