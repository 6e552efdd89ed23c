package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/duke-git/lancet/v2/fileutil"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/pkg/logger"
	"yqhp/kambo-hive/pkg/types"
)

// Service is a component the host runs next to the coordination server, such
// as the discovery responder or the status API. Its failure is logged and does
// not stop the host.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Host bootstraps the task queue, runs every component under one context and
// writes the final report once all tasks are terminal.
type Host struct {
	cfg   *config.Config
	clock clockwork.Clock
	log   *zap.Logger

	queue    *TaskManager
	results  *ResultAggregator
	registry *WorkerRegistry
	server   *Server
	saver    *PeriodicSaver
	services []Service
}

// NewHost wires a host from configuration. Sinks receive periodic snapshots;
// with no sinks the saver is disabled.
func NewHost(cfg *config.Config, clock clockwork.Clock, sinks ...SnapshotSink) (*Host, error) {
	strategy, err := types.ParseDistributionStrategy(cfg.Host.Strategy)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	queue := NewTaskManager(strategy,
		WithClock(clock),
		WithMaxAttempts(cfg.Host.MaxAttempts))
	results := NewResultAggregator(clock)
	registry := NewWorkerRegistry(clock)

	h := &Host{
		cfg:      cfg,
		clock:    clock,
		log:      logger.Named("master"),
		queue:    queue,
		results:  results,
		registry: registry,
		server: NewServer(ServerConfig{
			Address:          cfg.Host.BindAddress,
			MaxFrameSize:     cfg.Host.MaxFrameSize,
			MaxAssignmentAge: cfg.Host.MaxAssignmentAge,
			SweepInterval:    cfg.Host.SweepInterval,
		}, queue, results, registry, clock),
	}
	if len(sinks) > 0 {
		h.saver = NewPeriodicSaver(results, cfg.Snapshot.Interval, clock, sinks...)
	}
	return h, nil
}

// Queue returns the host's task queue.
func (h *Host) Queue() *TaskManager { return h.queue }

// Results returns the host's result aggregator.
func (h *Host) Results() *ResultAggregator { return h.results }

// Registry returns the host's worker registry.
func (h *Host) Registry() *WorkerRegistry { return h.registry }

// AddService registers a component to run alongside the server.
func (h *Host) AddService(svc Service) {
	h.services = append(h.services, svc)
}

// Listen binds the coordination port so the address is known before Run.
func (h *Host) Listen() error {
	return h.server.Listen()
}

// Addr returns the bound coordination address.
func (h *Host) Addr() net.Addr {
	return h.server.Addr()
}

// TaskConfig serializes the compute configuration shared by every task.
func TaskConfig(c config.ComputeConfig) (string, error) {
	return sonic.MarshalString(c)
}

// SeedFromDir queues trials tasks for every graph file in dir and returns the
// graph ids in the order they were seeded.
func (h *Host) SeedFromDir(dir string, trials int, taskConfig string) ([]string, error) {
	if !fileutil.IsDir(dir) {
		return nil, fmt.Errorf("graphs directory %s is not readable", dir)
	}
	names, err := fileutil.ListFileNames(dir)
	if err != nil {
		return nil, fmt.Errorf("list graphs in %s: %w", dir, err)
	}

	graphs := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, ".") || fileutil.IsDir(filepath.Join(dir, name)) {
			continue
		}
		graphs = append(graphs, name)
	}
	if len(graphs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoGraphs, dir)
	}
	sort.Strings(graphs)

	for _, graphID := range graphs {
		h.queue.Seed(graphID, trials, taskConfig)
	}
	h.log.Info("task queue seeded",
		zap.Int("graphs", len(graphs)),
		zap.Int("trials", trials),
		zap.Int("tasks", h.queue.TotalTasks()),
		zap.String("strategy", string(h.queue.Strategy())))
	return graphs, nil
}

// Run serves workers until every task is terminal, then writes the final
// report. A coordination server failure aborts the run. A report write failure
// is logged and the report is still returned.
func (h *Host) Run(ctx context.Context) (*types.Report, error) {
	if err := h.server.Listen(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		return h.server.Serve(runCtx)
	})
	if h.saver != nil {
		g.Go(func() error {
			return h.saver.Run(runCtx)
		})
	}
	for _, svc := range h.services {
		g.Go(func() error {
			if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				h.log.Error("service stopped", zap.String("service", svc.Name()), zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stop()
		return h.waitForCompletion(runCtx)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report, err := h.results.GenerateReport(h.queue, h.cfg.Host.ReportPath)
	if err != nil {
		h.log.Error("final report not written", zap.Error(err))
		return report, nil
	}
	h.log.Info("final report written",
		zap.String("path", h.cfg.Host.ReportPath),
		zap.Int("results", report.TotalResultsCollected),
		zap.Int("failed", report.FailedTasks))
	return report, nil
}

func (h *Host) waitForCompletion(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.cfg.Host.PollInterval)
	defer ticker.Stop()

	for {
		progress := h.queue.Progress()
		if progress.Done() {
			h.log.Info("all tasks finished",
				zap.Int("completed", progress.CompletedTasks),
				zap.Int("failed", progress.FailedTasks))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			h.log.Info("progress",
				zap.Int("completed", progress.CompletedTasks),
				zap.Int("failed", progress.FailedTasks),
				zap.Int("assigned", progress.AssignedTasks),
				zap.Int("pending", progress.PendingTasks),
				zap.Int("total", progress.TotalTasks),
				zap.Int("workers_online", h.registry.OnlineCount()))
		}
	}
}
