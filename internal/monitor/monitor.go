/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

// Store is the slice of the engine the monitor reads and writes.
type Store interface {
	store.TopologyRegistry
	store.ConnectionTracker
	store.AuthFlowEngine
	store.AuditLog
}

// HealthMonitorConfig contains configuration for HealthMonitor
type HealthMonitorConfig struct {
	Store            Store
	NodeId           int64
	PollingInterval  time.Duration
	LookbackWindow   time.Duration
	FailureThreshold float64
	MinAttempts      int64
	Now              func() time.Time
}

// Snapshot is the result of one health check.
type Snapshot struct {
	Status            models.NodeStatus
	ActiveConnections int
	Rate              models.FailureRate
	Degraded          bool
}

// HealthMonitor periodically checks a node's authentication failure rate
// and flips the node between active and error when it crosses the threshold.
type HealthMonitor struct {
	store            Store
	nodeId           int64
	pollingInterval  time.Duration
	lookbackWindow   time.Duration
	failureThreshold float64
	minAttempts      int64
	now              func() time.Time

	mutex sync.RWMutex
	last  Snapshot

	// Control channels
	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewHealthMonitor(cfg HealthMonitorConfig) *HealthMonitor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &HealthMonitor{
		store:            cfg.Store,
		nodeId:           cfg.NodeId,
		pollingInterval:  cfg.PollingInterval,
		lookbackWindow:   cfg.LookbackWindow,
		failureThreshold: cfg.FailureThreshold,
		minAttempts:      cfg.MinAttempts,
		now:              now,
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
	}
}

// Start runs one check synchronously and then keeps polling in the background.
func (m *HealthMonitor) Start(ctx context.Context) error {
	if m.pollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive, got %s", m.pollingInterval)
	}

	if _, err := m.Check(ctx); err != nil {
		return fmt.Errorf("initial health check failed: %w", err)
	}

	m.started.Store(true)
	go m.pollLoop(ctx)

	zap.L().Info("Health monitor started",
		zap.Int64("node_id", m.nodeId),
		zap.Duration("polling_interval", m.pollingInterval),
		zap.Duration("lookback_window", m.lookbackWindow),
		zap.Float64("failure_threshold", m.failureThreshold))
	return nil
}

// Stop gracefully stops the monitor
func (m *HealthMonitor) Stop() {
	if !m.started.Load() {
		return
	}
	m.stopOnce.Do(func() {
		zap.L().Info("Stopping health monitor", zap.Int64("node_id", m.nodeId))
		close(m.stopChan)
	})
	<-m.doneChan
}

func (m *HealthMonitor) pollLoop(ctx context.Context) {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				zap.L().Error("Health check failed", zap.Int64("node_id", m.nodeId), zap.Error(err))
			}
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Last returns the most recent snapshot.
func (m *HealthMonitor) Last() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.last
}

// Check evaluates the node once. A node in maintenance is never touched.
func (m *HealthMonitor) Check(ctx context.Context) (Snapshot, error) {
	node, err := m.store.GetNode(ctx, m.nodeId)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load node: %w", err)
	}

	now := m.now().UTC()
	window := models.TimeWindow{To: now.Add(time.Nanosecond)}
	if m.lookbackWindow > 0 {
		window.From = now.Add(-m.lookbackWindow)
	}
	rate, err := m.store.FailureRate(ctx, m.nodeId, window)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to compute failure rate: %w", err)
	}

	active := 0
	for _, err := range m.store.ListActiveConnections(ctx, m.nodeId) {
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to list connections: %w", err)
		}
		active++
	}

	snapshot := Snapshot{
		Status:            node.Status,
		ActiveConnections: active,
		Rate:              rate,
		Degraded:          rate.Attempts >= m.minAttempts && rate.Rate() > m.failureThreshold,
	}

	switch {
	case node.Status == models.NodeStatusMaintenance:
	case snapshot.Degraded && node.Status != models.NodeStatusError:
		snapshot.Status, err = m.transition(ctx, models.NodeStatusError, models.LogLevelWarn, "auth failure rate above threshold", rate)
	case !snapshot.Degraded && node.Status == models.NodeStatusError:
		snapshot.Status, err = m.transition(ctx, models.NodeStatusActive, models.LogLevelInfo, "auth failure rate recovered", rate)
	}
	if err != nil {
		return Snapshot{}, err
	}

	m.mutex.Lock()
	m.last = snapshot
	m.mutex.Unlock()

	zap.L().Debug("Health check completed",
		zap.Int64("node_id", m.nodeId),
		zap.String("status", string(snapshot.Status)),
		zap.Int("active_connections", active),
		zap.Int64("attempts", rate.Attempts),
		zap.Int64("failures", rate.Failures))
	return snapshot, nil
}

func (m *HealthMonitor) transition(ctx context.Context, status models.NodeStatus, level models.LogLevel, message string, rate models.FailureRate) (models.NodeStatus, error) {
	if err := m.store.SetNodeStatus(ctx, m.nodeId, status); err != nil {
		return "", fmt.Errorf("failed to set node status: %w", err)
	}

	content, err := models.JSONBlob(map[string]any{
		"attempts":  rate.Attempts,
		"failures":  rate.Failures,
		"rate":      rate.Rate(),
		"threshold": m.failureThreshold,
	})
	if err != nil {
		return "", err
	}
	if _, err := m.store.AppendLog(ctx, m.nodeId, level, message, content); err != nil {
		return "", fmt.Errorf("failed to append log: %w", err)
	}

	zap.L().Warn("Node status changed by health monitor",
		zap.Int64("node_id", m.nodeId),
		zap.String("status", string(status)),
		zap.Float64("failure_rate", rate.Rate()))
	return status, nil
}
