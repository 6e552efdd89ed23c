package rest

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/kambo-hive/internal/master"
	"yqhp/kambo-hive/pkg/types"
)

type fixture struct {
	server   *Server
	queue    *master.TaskManager
	results  *master.ResultAggregator
	registry *master.WorkerRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	f := &fixture{
		queue:    master.NewTaskManager(types.StrategyLifo, master.WithClock(clock)),
		results:  master.NewResultAggregator(clock),
		registry: master.NewWorkerRegistry(clock),
	}
	f.server = NewServer(f.queue, f.registry, f.results, nil)
	return f
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		var result HealthResponse
		assert.Equal(t, fiber.StatusOK, get(t, f.server, path, &result))
		assert.Equal(t, "healthy", result.Status)
	}
}

func TestGetProgress(t *testing.T) {
	f := newFixture(t)
	f.queue.Seed("g1", 3, "")
	task, ok := f.queue.NextTask("w1")
	require.True(t, ok)
	require.NoError(t, f.queue.Complete(task.ID, "w1"))
	f.queue.NextTask("w2")
	f.registry.Touch("w1", "10.0.0.1:5000")

	var result ProgressResponse
	assert.Equal(t, fiber.StatusOK, get(t, f.server, "/api/v1/progress", &result))
	assert.Equal(t, 3, result.TotalTasks)
	assert.Equal(t, 1, result.CompletedTasks)
	assert.Equal(t, 1, result.AssignedTasks)
	assert.Equal(t, 1, result.PendingTasks)
	assert.Equal(t, "lifo", result.Strategy)
	assert.False(t, result.Done)
	assert.Equal(t, 1, result.OnlineWorkers)
}

func TestListWorkers(t *testing.T) {
	f := newFixture(t)
	f.registry.Touch("w1", "10.0.0.1:5000")
	f.registry.Touch("w2", "10.0.0.2:5000")
	f.registry.RecordOutcome("w1", true)

	var result WorkerListResponse
	assert.Equal(t, fiber.StatusOK, get(t, f.server, "/api/v1/workers", &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Online)
	require.Len(t, result.Workers, 2)

	var worker types.WorkerInfo
	assert.Equal(t, fiber.StatusOK, get(t, f.server, "/api/v1/workers/w1", &worker))
	assert.Equal(t, "w1", worker.ID)
	assert.Equal(t, 1, worker.TasksCompleted)

	var errResp ErrorResponse
	assert.Equal(t, fiber.StatusNotFound, get(t, f.server, "/api/v1/workers/missing", &errResp))
	assert.Equal(t, "not_found", errResp.Error)
}

func TestGetResults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.results.Record(&types.TaskResult{TaskID: "t1", GraphID: "g1", Fitness: 4}))
	require.NoError(t, f.results.Record(&types.TaskResult{TaskID: "t2", GraphID: "g1", Fitness: 6}))

	var snap types.Snapshot
	assert.Equal(t, fiber.StatusOK, get(t, f.server, "/api/v1/results", &snap))
	assert.Equal(t, 2, snap.TotalResultsCollected)
	assert.Len(t, snap.ResultsByGraph["g1"], 2)

	var graph GraphResultsResponse
	assert.Equal(t, fiber.StatusOK, get(t, f.server, "/api/v1/results/g1", &graph))
	assert.Equal(t, 2, graph.Total)

	assert.Equal(t, fiber.StatusNotFound, get(t, f.server, "/api/v1/results/g9", nil))
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	var errResp ErrorResponse
	assert.Equal(t, fiber.StatusNotFound, get(t, f.server, "/api/v1/nope", &errResp))
	assert.Equal(t, "error_404", errResp.Error)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunRejectsBadAddress(t *testing.T) {
	s := NewServer(nil, nil, nil, &Config{Address: "not-an-address"})
	assert.Error(t, s.Run(context.Background()))
}
