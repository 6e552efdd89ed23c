// Package rest provides the read-only HTTP status API of the host.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"yqhp/kambo-hive/pkg/logger"
	"yqhp/kambo-hive/pkg/types"
)

// ProgressSource exposes the task queue counters.
type ProgressSource interface {
	Progress() types.Progress
	Strategy() types.DistributionStrategy
}

// WorkerSource exposes the host's view of its workers.
type WorkerSource interface {
	List() []types.WorkerInfo
	Get(workerID string) (types.WorkerInfo, bool)
	OnlineCount() int
}

// ResultSource exposes the collected results.
type ResultSource interface {
	Snapshot() *types.Snapshot
}

// Server represents the status API server.
type Server struct {
	app     *fiber.App
	config  *Config
	log     *zap.Logger
	started time.Time

	progress ProgressSource
	workers  WorkerSource
	results  ResultSource
}

// Config holds the configuration for the status API server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown once the context is cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// NewServer creates a new status API server.
func NewServer(progress ProgressSource, workers WorkerSource, results ResultSource, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               "Hive Status API",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	server := &Server{
		app:      app,
		config:   config,
		log:      logger.Named("rest"),
		started:  time.Now(),
		progress: progress,
		workers:  workers,
		results:  results,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New())

	// 请求日志写入 zap
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${status} | ${latency} | ${method} ${path}\n",
		Output: zap.NewStdLog(s.log).Writer(),
	}))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Get("/progress", s.getProgress)
	api.Get("/workers", s.listWorkers)
	api.Get("/workers/:id", s.getWorker)
	api.Get("/results", s.getResults)
	api.Get("/results/:graph", s.getGraphResults)
}

// Name implements master.Service.
func (s *Server) Name() string {
	return "status-api"
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("status api listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("status api listening", zap.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(s.config.ShutdownTimeout); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
