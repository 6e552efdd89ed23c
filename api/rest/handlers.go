package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// getProgress handles GET /api/v1/progress
func (s *Server) getProgress(c *fiber.Ctx) error {
	p := s.progress.Progress()
	return c.JSON(ProgressResponse{
		Progress:      p,
		Strategy:      string(s.progress.Strategy()),
		Done:          p.Done(),
		OnlineWorkers: s.workers.OnlineCount(),
	})
}

// listWorkers handles GET /api/v1/workers
func (s *Server) listWorkers(c *fiber.Ctx) error {
	workers := s.workers.List()
	return c.JSON(WorkerListResponse{
		Workers: workers,
		Total:   len(workers),
		Online:  s.workers.OnlineCount(),
	})
}

// getWorker handles GET /api/v1/workers/:id
func (s *Server) getWorker(c *fiber.Ctx) error {
	id := c.Params("id")
	info, ok := s.workers.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "worker not found: " + id,
		})
	}
	return c.JSON(info)
}

// getResults handles GET /api/v1/results
func (s *Server) getResults(c *fiber.Ctx) error {
	return c.JSON(s.results.Snapshot())
}

// getGraphResults handles GET /api/v1/results/:graph
func (s *Server) getGraphResults(c *fiber.Ctx) error {
	graph := c.Params("graph")
	results, ok := s.results.Snapshot().ResultsByGraph[graph]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "no results for graph: " + graph,
		})
	}
	return c.JSON(GraphResultsResponse{
		GraphID: graph,
		Results: results,
		Total:   len(results),
	})
}
