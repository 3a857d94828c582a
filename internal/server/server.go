package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/monitor"
	"fund-session-engine/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Store is the read side of the engine served over HTTP.
type Store interface {
	store.TopologyRegistry
	store.ConnectionTracker
	store.AuditLog
}

// HealthSource reports the latest health snapshot of a node.
type HealthSource interface {
	Last() monitor.Snapshot
}

// Config contains configuration for Server
type Config struct {
	Addr   string
	Store  Store
	NodeId int64
	// Health is optional; without it /health reports the stored node status only.
	Health HealthSource
}

// Server exposes a node's health, logs and active connections read-only.
type Server struct {
	store  Store
	nodeId int64
	health HealthSource

	Router *gin.Engine
	server *http.Server
	wg     sync.WaitGroup
}

type healthResponse struct {
	Status            string            `json:"status"`
	NodeId            int64             `json:"node_id"`
	Name              string            `json:"name"`
	UUID              string            `json:"uuid"`
	NodeStatus        models.NodeStatus `json:"node_status"`
	ActiveConnections *int              `json:"active_connections,omitempty"`
	AuthAttempts      *int64            `json:"auth_attempts,omitempty"`
	AuthFailures      *int64            `json:"auth_failures,omitempty"`
	FailureRate       *float64          `json:"failure_rate,omitempty"`
}

type logResponse struct {
	Id        int64           `json:"id"`
	Level     models.LogLevel `json:"level"`
	Message   string          `json:"message"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

type connectionResponse struct {
	Id       int64     `json:"id"`
	Address  string    `json:"address"`
	OpenedAt time.Time `json:"opened_at"`
}

func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:  cfg.Store,
		nodeId: cfg.NodeId,
		health: cfg.Health,
		Router: gin.New(),
	}
	s.Router.Use(gin.Recovery())
	s.Router.GET("/health", s.Health)
	s.Router.GET("/logs", s.Logs)
	s.Router.GET("/connections", s.Connections)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		zap.L().Info("HTTP server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("HTTP server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.wg.Wait()
	return nil
}

// Health answers 503 while the node is in the error status.
func (s *Server) Health(c *gin.Context) {
	node, err := s.store.GetNode(c.Request.Context(), s.nodeId)
	if err != nil {
		writeError(c, err)
		return
	}

	response := healthResponse{
		Status:     "ok",
		NodeId:     node.Id,
		Name:       node.Name,
		UUID:       node.UUID,
		NodeStatus: node.Status,
	}
	if s.health != nil {
		snapshot := s.health.Last()
		rate := snapshot.Rate.Rate()
		response.ActiveConnections = &snapshot.ActiveConnections
		response.AuthAttempts = &snapshot.Rate.Attempts
		response.AuthFailures = &snapshot.Rate.Failures
		response.FailureRate = &rate
	}

	code := http.StatusOK
	if node.Status == models.NodeStatusError {
		response.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// Logs accepts optional level and since (RFC3339) query parameters.
func (s *Server) Logs(c *gin.Context) {
	var filter models.LogFilter
	if value := c.Query("level"); value != "" {
		level, err := models.ParseLogLevel(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.MinLevel = &level
	}
	if value := c.Query("since"); value != "" {
		since, err := time.Parse(time.RFC3339, value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("since must be RFC3339: %v", err)})
			return
		}
		since = since.UTC()
		filter.Since = &since
	}

	logs := []logResponse{}
	for entry, err := range s.store.QueryLogs(c.Request.Context(), s.nodeId, filter) {
		if err != nil {
			writeError(c, err)
			return
		}
		logs = append(logs, logResponse{
			Id:        entry.Id,
			Level:     entry.Level,
			Message:   entry.Message,
			Content:   string(entry.Content),
			CreatedAt: entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (s *Server) Connections(c *gin.Context) {
	connections := []connectionResponse{}
	for conn, err := range s.store.ListActiveConnections(c.Request.Context(), s.nodeId) {
		if err != nil {
			writeError(c, err)
			return
		}
		connections = append(connections, connectionResponse{Id: conn.Id, Address: conn.Address, OpenedAt: conn.OpenedAt})
	}
	c.JSON(http.StatusOK, gin.H{"connections": connections, "count": len(connections)})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		zap.L().Error("HTTP request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
