package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectActive(t *testing.T, s *Service, nodeId int64) []models.Connection {
	t.Helper()
	var conns []models.Connection
	for conn, err := range s.ListActiveConnections(context.Background(), nodeId) {
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	return conns
}

func TestOpenConnection(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	conn, err := service.GetConnection(ctx, connId)
	require.NoError(t, err)
	assert.Equal(t, nodeId, conn.NodeId)
	assert.Equal(t, "10.0.0.5", conn.Address)
	assert.True(t, conn.Active)
	assert.Nil(t, conn.ClosedAt)

	_, err = service.OpenConnection(ctx, nodeId+1, "10.0.0.5")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = service.OpenConnection(ctx, nodeId, "  ")
	assert.ErrorIs(t, err, store.ErrInvalidFormat)
}

func TestCloseConnection_ExactlyOnce(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	require.NoError(t, service.CloseConnection(ctx, connId))

	conn, err := service.GetConnection(ctx, connId)
	require.NoError(t, err)
	assert.False(t, conn.Active)
	require.NotNil(t, conn.ClosedAt)
	assert.False(t, conn.ClosedAt.Before(conn.OpenedAt))

	assert.ErrorIs(t, service.CloseConnection(ctx, connId), store.ErrAlreadyClosed)

	again, err := service.GetConnection(ctx, connId)
	require.NoError(t, err)
	assert.Equal(t, conn.ClosedAt, again.ClosedAt)

	assert.ErrorIs(t, service.CloseConnection(ctx, connId+1), store.ErrNotFound)
}

func TestCloseConnection_ClockBehindOpen(t *testing.T) {
	clock := newStepClock(time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC))
	service := setupTestDb(t, WithClock(clock.Now))
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	// Move the clock back before the open time.
	clock.mu.Lock()
	clock.next = time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.mu.Unlock()

	require.NoError(t, service.CloseConnection(ctx, connId))

	conn, err := service.GetConnection(ctx, connId)
	require.NoError(t, err)
	require.NotNil(t, conn.ClosedAt)
	assert.True(t, conn.ClosedAt.Equal(conn.OpenedAt))
}

func TestCloseConnection_ConcurrentClosersOneWins(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	const closers = 8
	var wg sync.WaitGroup
	results := make(chan error, closers)
	for range closers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- service.CloseConnection(ctx, connId)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, alreadyClosed int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrAlreadyClosed):
			alreadyClosed++
		default:
			t.Errorf("unexpected close error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, closers-1, alreadyClosed)
}

func TestListActiveConnections(t *testing.T) {
	clock := newStepClock(time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC))
	service := setupTestDb(t, WithClock(clock.Now))
	ctx := context.Background()

	nodeA := mustRegisterNode(t, service, "edge-a", models.NodeRoleChild, uuidA)
	nodeB := mustRegisterNode(t, service, "edge-b", models.NodeRoleChild, uuidB)

	first, err := service.OpenConnection(ctx, nodeA, "10.0.0.1")
	require.NoError(t, err)
	second, err := service.OpenConnection(ctx, nodeA, "10.0.0.2")
	require.NoError(t, err)
	third, err := service.OpenConnection(ctx, nodeA, "10.0.0.3")
	require.NoError(t, err)
	_, err = service.OpenConnection(ctx, nodeB, "10.0.0.4")
	require.NoError(t, err)

	require.NoError(t, service.CloseConnection(ctx, second))

	conns := collectActive(t, service, nodeA)
	require.Len(t, conns, 2)
	assert.Equal(t, first, conns[0].Id)
	assert.Equal(t, third, conns[1].Id)

	// The sequence can be ranged again and sees current state.
	require.NoError(t, service.CloseConnection(ctx, first))
	conns = collectActive(t, service, nodeA)
	require.Len(t, conns, 1)
	assert.Equal(t, third, conns[0].Id)

	assert.Empty(t, collectActive(t, service, nodeB+100))
}

func TestListActiveConnections_EarlyBreak(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	nodeId := mustRegisterNode(t, service, "edge-1", models.NodeRoleChild, uuidA)

	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		_, err := service.OpenConnection(ctx, nodeId, addr)
		require.NoError(t, err)
	}

	seen := 0
	for _, err := range service.ListActiveConnections(ctx, nodeId) {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)

	// Breaking out released the rows; writes still go through.
	_, err := service.OpenConnection(ctx, nodeId, "10.0.0.4")
	require.NoError(t, err)
	assert.Len(t, collectActive(t, service, nodeId), 4)
}
