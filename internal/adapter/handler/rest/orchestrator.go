package rest

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

// OrchestratorServer exposes task submission and inspection.
type OrchestratorServer struct {
	app *fiber.App
	svc port.OrchestratorService
	log *zap.Logger
}

// NewOrchestratorServer builds the orchestrator's HTTP surface. A nil
// storage falls back to the limiter's in-memory store.
func NewOrchestratorServer(svc port.OrchestratorService, storage fiber.Storage, log *zap.Logger) *OrchestratorServer {
	app := fiber.New(fiber.Config{
		AppName:      "Agent Orchestrator",
		ReadTimeout:  30 * time.Second,
		ErrorHandler: errorHandler,
	})

	s := &OrchestratorServer{app: app, svc: svc, log: log}

	app.Use(fiberrecover.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    storage,
	}))

	app.Post("/execute", s.executeTask)
	app.Get("/agents", s.listAgents)
	app.Get("/tasks", s.listTasks)
	app.Get("/tasks/:id", s.taskStatus)
	app.Get("/health", s.health)

	return s
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *OrchestratorServer) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *OrchestratorServer) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *OrchestratorServer) App() *fiber.App {
	return s.app
}

// executeTask handles POST /execute: submit and run to a terminal state.
// Worker-level failures are reported inside the record, never as a 5xx.
func (s *OrchestratorServer) executeTask(c *fiber.Ctx) error {
	var req domain.TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "failed to parse request body: " + err.Error(),
		})
	}
	req.Normalize()

	rec, err := s.svc.Submit(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}

	rec, err = s.svc.Execute(c.Context(), rec.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "dispatch_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(rec)
}

func (s *OrchestratorServer) listAgents(c *fiber.Ctx) error {
	agents := s.svc.Agents()
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, AgentView{
			Name:      a.Name,
			Role:      string(a.Role),
			Image:     a.Image,
			Resources: a.Resources,
		})
	}
	return c.JSON(AgentsResponse{Agents: views})
}

// listTasks handles GET /tasks: archived history, newest first. Accepts
// ?status= and ?limit= query filters.
func (s *OrchestratorServer) listTasks(c *fiber.Ctx) error {
	status := domain.TaskStatus(c.Query("status"))
	limit := c.QueryInt("limit", 20)

	records, err := s.svc.ListTasks(c.Context(), status, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: err.Error(),
		})
	}
	if records == nil {
		records = []*domain.TaskRecord{}
	}
	return c.JSON(TasksResponse{Tasks: records})
}

func (s *OrchestratorServer) taskStatus(c *fiber.Ctx) error {
	view, err := s.svc.TaskStatus(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "task not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "status_lookup_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(view)
}

func (s *OrchestratorServer) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Service:   "orchestrator",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	return c.Status(code).JSON(ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}
