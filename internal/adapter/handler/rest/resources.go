package rest

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

// ResourceServer exposes admission control and the usage views.
type ResourceServer struct {
	app *fiber.App
	svc port.ResourceService
	log *zap.Logger
}

// NewResourceServer builds the resource manager's HTTP surface. The metrics
// handler serves GET /metrics; nil disables the endpoint.
func NewResourceServer(svc port.ResourceService, metrics http.Handler, log *zap.Logger) *ResourceServer {
	app := fiber.New(fiber.Config{
		AppName:      "Resource Manager",
		ReadTimeout:  30 * time.Second,
		ErrorHandler: errorHandler,
	})

	s := &ResourceServer{app: app, svc: svc, log: log}

	app.Use(fiberrecover.New())

	app.Post("/allocate", s.allocate)
	app.Get("/summary", s.summary)
	app.Get("/containers", s.containers)
	app.Post("/rebalance", s.rebalance)
	app.Get("/health", s.health)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	return s
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *ResourceServer) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *ResourceServer) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *ResourceServer) App() *fiber.App {
	return s.app
}

func (s *ResourceServer) allocate(c *fiber.Ctx) error {
	var req domain.ResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "failed to parse request body: " + err.Error(),
		})
	}

	resp, err := s.svc.RequestAllocation(c.Context(), &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}
	return c.JSON(resp)
}

func (s *ResourceServer) summary(c *fiber.Ctx) error {
	return c.JSON(s.svc.Summary())
}

func (s *ResourceServer) containers(c *fiber.Ctx) error {
	return c.JSON(ContainersResponse{Containers: s.svc.Snapshots()})
}

// rebalance handles POST /rebalance: force one sampling+remediation cycle.
func (s *ResourceServer) rebalance(c *fiber.Ctx) error {
	if err := s.svc.CheckResources(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "rebalance_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(RebalanceResponse{Message: "resource rebalancing triggered"})
}

func (s *ResourceServer) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Service:   "resource-manager",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
