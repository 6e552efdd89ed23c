package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/kambo-hive/internal/protocol"
	"yqhp/kambo-hive/pkg/logger"
)

// ServerConfig holds the coordination server configuration.
type ServerConfig struct {
	// Address is the TCP address workers connect to.
	Address string

	// MaxFrameSize bounds a single protocol message.
	MaxFrameSize int

	// MaxAssignmentAge is how long an assignment may go without heartbeat or result.
	MaxAssignmentAge time.Duration

	// SweepInterval is how often stale assignments are reclaimed.
	SweepInterval time.Duration
}

// Server accepts worker connections and answers their requests.
// Each connection is served by its own goroutine; queue and aggregator locks
// are never held across network I/O.
type Server struct {
	config   ServerConfig
	queue    *TaskManager
	results  *ResultAggregator
	registry *WorkerRegistry
	clock    clockwork.Clock
	log      *zap.Logger

	listener net.Listener
	conns    map[net.Conn]struct{}
	connMu   sync.Mutex
	wg       sync.WaitGroup
}

// NewServer creates a coordination server over the given queue and aggregator.
func NewServer(config ServerConfig, queue *TaskManager, results *ResultAggregator, registry *WorkerRegistry, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if registry == nil {
		registry = NewWorkerRegistry(clock)
	}
	return &Server{
		config:   config,
		queue:    queue,
		results:  results,
		registry: registry,
		clock:    clock,
		log:      logger.Named("master.server"),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds the listening socket. A bind failure is fatal for the host.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.log.Info("coordination server listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry returns the worker registry fed by this server.
func (s *Server) Registry() *WorkerRegistry {
	return s.registry
}

// Serve runs the accept loop and the liveness sweep until ctx is cancelled.
// It returns nil on cancellation and an error if the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	var serveErr error
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				serveErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}

	cancel()
	s.closeConns()
	s.wg.Wait()
	s.log.Info("coordination server stopped")
	return serveErr
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer s.untrack(conn)

	s.log.Debug("connection opened", zap.String("remote", remote))
	codec := protocol.NewCodec(conn, s.config.MaxFrameSize)

	for {
		req, err := codec.ReadRequest()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				s.log.Debug("connection closed by peer", zap.String("remote", remote))
			case errors.Is(err, protocol.ErrProtocol):
				s.log.Warn("dropping connection after protocol error", zap.String("remote", remote), zap.Error(err))
			default:
				s.log.Debug("connection read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		resp, err := s.Handle(req, remote)
		if err != nil {
			s.log.Warn("dropping connection after protocol error", zap.String("remote", remote), zap.Error(err))
			return
		}
		if err := codec.WriteResponse(resp); err != nil {
			s.log.Debug("connection write failed", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

// Handle dispatches one request and produces its response. An error means the
// request violated the protocol and the connection should be dropped.
func (s *Server) Handle(req protocol.Request, remoteAddr string) (protocol.Response, error) {
	workerID := req.Worker()
	if workerID == "" {
		return nil, fmt.Errorf("%w: missing worker id", protocol.ErrProtocol)
	}
	if s.registry.Touch(workerID, remoteAddr) {
		s.log.Info("worker joined", zap.String("worker", workerID), zap.String("remote", remoteAddr))
	}

	switch m := req.(type) {
	case *protocol.RequestTask:
		requeued, failed := s.queue.ReleaseWorker(workerID)
		for _, id := range requeued {
			s.log.Warn("abandoned task requeued", zap.String("task", id), zap.String("worker", workerID))
		}
		for _, id := range failed {
			s.log.Error("task failed after max attempts", zap.String("task", id), zap.String("worker", workerID))
		}
		task, ok := s.queue.NextTask(workerID)
		if !ok {
			return &protocol.NoTaskAvailable{}, nil
		}
		s.registry.SetCurrentTask(workerID, task.ID)
		s.log.Info("task assigned",
			zap.String("task", task.ID),
			zap.String("graph", task.GraphID),
			zap.Int("run", task.RunNumber),
			zap.String("worker", workerID))
		return &protocol.AssignTask{Task: task}, nil

	case *protocol.ReportResult:
		if err := s.results.Record(m.Result); err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
		}
		if err := s.queue.Complete(m.Result.TaskID, workerID); err != nil {
			s.log.Warn("result recorded but not credited",
				zap.String("task", m.Result.TaskID),
				zap.String("worker", workerID),
				zap.Error(err))
			return &protocol.Ack{}, nil
		}
		s.registry.RecordOutcome(workerID, true)
		s.log.Info("task completed",
			zap.String("task", m.Result.TaskID),
			zap.String("graph", m.Result.GraphID),
			zap.Float64("fitness", m.Result.Fitness),
			zap.String("worker", workerID))
		return &protocol.Ack{}, nil

	case *protocol.ReportFailure:
		state, err := s.queue.Fail(m.TaskID, workerID)
		if err != nil {
			s.log.Warn("failure report ignored",
				zap.String("task", m.TaskID),
				zap.String("worker", workerID),
				zap.Error(err))
			return &protocol.Ack{}, nil
		}
		s.registry.RecordOutcome(workerID, false)
		s.log.Warn("task failed on worker",
			zap.String("task", m.TaskID),
			zap.String("worker", workerID),
			zap.String("reason", m.Reason),
			zap.String("state", string(state)))
		return &protocol.Ack{}, nil

	case *protocol.Heartbeat:
		renewed := s.queue.RenewLease(workerID)
		s.log.Debug("heartbeat", zap.String("worker", workerID), zap.Int("renewed", renewed))
		return &protocol.Ack{}, nil

	default:
		return nil, fmt.Errorf("%w: unhandled request %T", protocol.ErrProtocol, req)
	}
}

// Sweep reclaims stale assignments and marks silent workers offline.
func (s *Server) Sweep() {
	reclaimed, failed := s.queue.ReclaimStale(s.config.MaxAssignmentAge)
	for _, id := range reclaimed {
		s.log.Warn("stale assignment reclaimed", zap.String("task", id))
	}
	for _, id := range failed {
		s.log.Error("task failed after max attempts", zap.String("task", id))
	}
	for _, id := range s.registry.MarkStale(s.config.MaxAssignmentAge) {
		s.log.Warn("worker went offline", zap.String("worker", id))
	}
}

func (s *Server) sweepLoop(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

func (s *Server) track(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	conn.Close()
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
