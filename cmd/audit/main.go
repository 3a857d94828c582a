package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fund-session-engine/internal/common"
	"fund-session-engine/internal/config"
	"fund-session-engine/internal/database"
	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

func resolveNode(ctx context.Context, engine *database.Service, nodeId int64, nodeUUID string) (*models.Node, error) {
	if nodeUUID != "" {
		return engine.GetNodeByUUID(ctx, nodeUUID)
	}
	return engine.GetNode(ctx, nodeId)
}

func printLogs(ctx context.Context, engine *database.Service, nodeId int64, filter models.LogFilter) (int, error) {
	var rows [][]string
	for entry, err := range engine.QueryLogs(ctx, nodeId, filter) {
		if err != nil {
			return 0, err
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.Id, 10),
			common.FormatTime(&entry.CreatedAt),
			string(entry.Level),
			common.Truncate(entry.Message, 60),
			common.Truncate(string(entry.Content), 40),
		})
	}
	common.RenderTable(os.Stdout, []string{"Id", "Time", "Level", "Message", "Content"}, rows)
	return len(rows), nil
}

func printConnections(ctx context.Context, engine *database.Service, nodeId int64) (int, error) {
	var rows [][]string
	for conn, err := range engine.ListActiveConnections(ctx, nodeId) {
		if err != nil {
			return 0, err
		}
		rows = append(rows, []string{
			strconv.FormatInt(conn.Id, 10),
			conn.Address,
			common.FormatTime(&conn.OpenedAt),
		})
	}
	common.RenderTable(os.Stdout, []string{"Id", "Address", "Opened"}, rows)
	return len(rows), nil
}

func follow(ctx context.Context, services *common.Services, nodeId int64) {
	if services.Publisher == nil {
		zap.L().Fatal("--follow needs REDIS_URL to be set")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Following node %d events, press Ctrl+C to stop\n", nodeId)
	err := services.Publisher.Subscribe(ctx, nodeId, func(event store.Event) {
		fmt.Printf("%s  %-20s  entity=%d  %s\n", event.At.Format(time.RFC3339), event.Kind, event.EntityId, event.Detail)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Fatal("Event subscription failed", zap.Error(err))
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nodeIdFlag := flag.Int64("node-id", 0, "Node id to audit")
	uuidFlag := flag.String("uuid", "", "Node uuid to audit (overrides --node-id)")
	levelFlag := flag.String("level", "", "Minimum log level: DEBUG, INFO, WARN, ERROR or FATAL (optional)")
	sinceFlag := flag.Duration("since", 0, "Only show logs and auth attempts newer than this, e.g. 1h (optional)")
	followFlag := flag.Bool("follow", false, "Stream live node events after the report")
	flag.Parse()

	if *nodeIdFlag == 0 && *uuidFlag == "" {
		logger.Fatal("Either --node-id or --uuid is required")
	}

	var filter models.LogFilter
	if *levelFlag != "" {
		level, err := models.ParseLogLevel(*levelFlag)
		if err != nil {
			logger.Fatal("Invalid log level", zap.Error(err))
		}
		filter.MinLevel = &level
	}

	var window models.TimeWindow
	if *sinceFlag > 0 {
		since := time.Now().UTC().Add(-*sinceFlag)
		filter.Since = &since
		window.From = since
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	engine := services.DbService
	node, err := resolveNode(ctx, engine, *nodeIdFlag, *uuidFlag)
	if err != nil {
		logger.Fatal("Node not found", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("NODE AUDIT: %s (%s, %s)", node.Name, node.Role, node.Status), common.WideWidth)
	fmt.Printf("ID:    %d\n", node.Id)
	fmt.Printf("UUID:  %s\n", node.UUID)
	fmt.Printf("State: %s\n", common.Truncate(string(node.State), 80))

	common.PrintHeader("LOGS", common.WideWidth)
	logCount, err := printLogs(ctx, engine, node.Id, filter)
	if err != nil {
		logger.Fatal("Failed to query logs", zap.Error(err))
	}

	common.PrintHeader("ACTIVE CONNECTIONS", common.WideWidth)
	connCount, err := printConnections(ctx, engine, node.Id)
	if err != nil {
		logger.Fatal("Failed to list connections", zap.Error(err))
	}

	rate, err := engine.FailureRate(ctx, node.Id, window)
	if err != nil {
		logger.Fatal("Failed to compute failure rate", zap.Error(err))
	}

	summary := fmt.Sprintf("SUMMARY: %d log entries, %d active connections, auth failure rate %.2f (%d/%d)",
		logCount, connCount, rate.Rate(), rate.Failures, rate.Attempts)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Audit completed",
		zap.Int64("node_id", node.Id),
		zap.Int("log_entries", logCount),
		zap.Int("active_connections", connCount),
		zap.Float64("failure_rate", rate.Rate()))

	if *followFlag {
		follow(ctx, services, node.Id)
	}
}
