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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fund-session-engine/internal/common"
	"fund-session-engine/internal/config"
	"fund-session-engine/internal/models"
	"fund-session-engine/internal/monitor"
	"fund-session-engine/internal/server"

	"go.uber.org/zap"
)

func main() {
	manifestFlag := flag.String("manifest", "", "Path to the node manifest (default: NODE_MANIFEST or node.yaml)")
	noMonitor := flag.Bool("no-monitor", false, "Register the node without running the health monitor")
	noHTTP := flag.Bool("no-http", false, "Do not serve /health, /logs and /connections")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manifestFile := cfg.Node.ManifestFile
	if *manifestFlag != "" {
		manifestFile = *manifestFlag
	}

	manifest, err := common.LoadNodeManifest(manifestFile)
	if err != nil {
		zap.L().Fatal("Failed to load node manifest", zap.String("file", manifestFile), zap.Error(err))
	}

	zap.L().Info("Starting node",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("uuid", manifest.UUID),
		zap.String("role", string(manifest.Role())))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	engine := services.DbService
	startedAt := time.Now().UTC()

	state, err := models.JSONBlob(map[string]string{
		"version":    manifest.Version,
		"server":     manifest.Server,
		"started_at": startedAt.Format(time.RFC3339),
	})
	if err != nil {
		zap.L().Fatal("Failed to encode node state", zap.Error(err))
	}

	node, created, err := engine.EnsureNode(ctx, manifest.Name, manifest.Role(), manifest.UUID, state)
	if err != nil {
		zap.L().Fatal("Failed to register node", zap.Error(err))
	}
	if !created {
		if err := engine.UpdateNodeState(ctx, node.Id, state); err != nil {
			zap.L().Fatal("Failed to update node state", zap.Error(err))
		}
	}

	if err := engine.SetNodeStatus(ctx, node.Id, models.NodeStatusActive); err != nil {
		zap.L().Fatal("Failed to activate node", zap.Error(err))
	}
	if _, err := engine.AppendLog(ctx, node.Id, models.LogLevelInfo, "node started", state); err != nil {
		zap.L().Error("Failed to write startup log", zap.Error(err))
	}

	var healthMonitor *monitor.HealthMonitor
	if !*noMonitor {
		healthMonitor = monitor.NewHealthMonitor(monitor.HealthMonitorConfig{
			Store:            engine,
			NodeId:           node.Id,
			PollingInterval:  cfg.Monitor.PollingInterval,
			LookbackWindow:   cfg.Monitor.LookbackWindow,
			FailureThreshold: cfg.Monitor.FailureThreshold,
			MinAttempts:      int64(cfg.Monitor.MinAttempts),
		})
		if err := healthMonitor.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start health monitor", zap.Error(err))
		}
	}

	var httpServer *server.Server
	if !*noHTTP {
		httpConfig := server.Config{Addr: cfg.HTTP.Addr, Store: engine, NodeId: node.Id}
		if healthMonitor != nil {
			httpConfig.Health = healthMonitor
		}
		httpServer = server.New(httpConfig)
		httpServer.Start()
	}

	zap.L().Info("Node running", zap.Int64("node_id", node.Id), zap.Bool("created", created))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, deactivating node...")

	if healthMonitor != nil {
		healthMonitor.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Failed to shut down HTTP server", zap.Error(err))
		}
	}

	if _, err := engine.AppendLog(shutdownCtx, node.Id, models.LogLevelInfo, "node stopped", nil); err != nil {
		zap.L().Error("Failed to write shutdown log", zap.Error(err))
	}
	if err := engine.SetNodeStatus(shutdownCtx, node.Id, models.NodeStatusInactive); err != nil {
		zap.L().Error("Failed to deactivate node", zap.Error(err))
	}

	zap.L().Info("Node stopped", zap.Int64("node_id", node.Id))
}
