package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"fund-session-engine/internal/common"
	"fund-session-engine/internal/config"
	"fund-session-engine/internal/database"
	"fund-session-engine/internal/models"

	"go.uber.org/zap"
)

const usage = `actions:
  list                                  list registered nodes (default)
  status     --node-id N --status S     set node status
  deregister --node-id N                remove a node and everything it owns
  open       --node-id N --address A    open a connection
  close      --conn-id N                close a connection
  attempt    --conn-id N [--success]    record an auth attempt`

func listNodes(ctx context.Context, engine *database.Service) error {
	nodes, err := engine.ListNodes(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, []string{
			strconv.FormatInt(node.Id, 10),
			node.Name,
			string(node.Role),
			string(node.Status),
			node.UUID,
			common.FormatTime(&node.CreatedAt),
		})
	}

	common.PrintHeader("NODES", common.WideWidth)
	common.RenderTable(os.Stdout, []string{"Id", "Name", "Role", "Status", "UUID", "Registered"}, rows)
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d nodes", len(nodes)), common.WideWidth)
	return nil
}

func requireId(name string, value int64) {
	if value <= 0 {
		zap.L().Fatal(fmt.Sprintf("--%s is required for this action", name))
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nodeIdFlag := flag.Int64("node-id", 0, "Node id")
	connIdFlag := flag.Int64("conn-id", 0, "Connection id")
	statusFlag := flag.String("status", "", "Node status: active, inactive, maintenance or error")
	addressFlag := flag.String("address", "", "Remote address for a new connection")
	successFlag := flag.Bool("success", false, "Mark the auth attempt as successful")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [action]\n%s\n\nflags:\n", os.Args[0], usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	action := "list"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()
	engine := services.DbService

	switch action {
	case "list":
		if err := listNodes(ctx, engine); err != nil {
			logger.Fatal("Failed to list nodes", zap.Error(err))
		}

	case "status":
		requireId("node-id", *nodeIdFlag)
		status := models.NodeStatus(*statusFlag)
		if err := engine.SetNodeStatus(ctx, *nodeIdFlag, status); err != nil {
			logger.Fatal("Failed to set node status", zap.Error(err))
		}
		fmt.Printf("✓ Node %d is now %s\n", *nodeIdFlag, status)

	case "deregister":
		requireId("node-id", *nodeIdFlag)
		cascade, err := engine.DeregisterNode(ctx, *nodeIdFlag)
		if err != nil {
			logger.Fatal("Failed to deregister node", zap.Error(err))
		}
		fmt.Printf("✓ Node %d removed with %d connections, %d auth requests and %d log entries\n",
			*nodeIdFlag, cascade.Connections, cascade.AuthRequests, cascade.LogEntries)

	case "open":
		requireId("node-id", *nodeIdFlag)
		connId, err := engine.OpenConnection(ctx, *nodeIdFlag, *addressFlag)
		if err != nil {
			logger.Fatal("Failed to open connection", zap.Error(err))
		}
		fmt.Printf("✓ Connection %d opened from %s\n", connId, *addressFlag)

	case "close":
		requireId("conn-id", *connIdFlag)
		if err := engine.CloseConnection(ctx, *connIdFlag); err != nil {
			logger.Fatal("Failed to close connection", zap.Error(err))
		}
		fmt.Printf("✓ Connection %d closed\n", *connIdFlag)

	case "attempt":
		requireId("conn-id", *connIdFlag)
		reqId, err := engine.RecordAttempt(ctx, *connIdFlag, *successFlag, nil)
		if err != nil {
			logger.Fatal("Failed to record auth attempt", zap.Error(err))
		}
		fmt.Printf("✓ Auth attempt %d recorded (success=%t)\n", reqId, *successFlag)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
