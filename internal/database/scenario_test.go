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

func TestScenario_NodeSessionLifecycle(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	nodeId, err := service.RegisterNode(ctx, "edge-1", models.RoleFromName("edge-1-child"), uuidA)
	require.NoError(t, err)

	connId, err := service.OpenConnection(ctx, nodeId, "10.0.0.5")
	require.NoError(t, err)

	failedId, err := service.RecordAttempt(ctx, connId, false, models.Blob(`{}`))
	require.NoError(t, err)
	okId, err := service.RecordAttempt(ctx, connId, true, models.Blob(`{"method":"key"}`))
	require.NoError(t, err)

	require.NoError(t, service.CloseConnection(ctx, connId))

	requests, err := service.ListAuthRequests(ctx, connId)
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, failedId, requests[0].Id)
	assert.Equal(t, okId, requests[1].Id)
	assert.Equal(t, models.Blob(`{"method":"key"}`), requests[1].Content)

	rate, err := service.FailureRate(ctx, nodeId, models.TimeWindow{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate.Rate(), 1e-9)

	conn, err := service.GetConnection(ctx, connId)
	require.NoError(t, err)
	assert.False(t, conn.Active)
	assert.Empty(t, collectActive(t, service, nodeId))
}

func TestScenario_DevKeyRevocation(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	userId, err := service.CreateUser(ctx, models.NewUser{
		Username:       "alice",
		Email:          "a@x.com",
		CredentialHash: testHash(),
		Birthday:       time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	keyId, material, err := service.IssueDevKey(ctx, userId)
	require.NoError(t, err)
	assert.Len(t, material, KeyMaterialLength)

	require.NoError(t, service.RevokeDevKey(ctx, keyId))
	assert.ErrorIs(t, service.RevokeDevKey(ctx, keyId), store.ErrAlreadyRevoked)

	key, err := service.GetDevKey(ctx, keyId)
	require.NoError(t, err)
	assert.True(t, key.Revoked)
}
