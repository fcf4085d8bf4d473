package controller

import (
	"context"

	"crewtalk-be/internal/dto"
	"crewtalk-be/internal/pkg/logger"
	"crewtalk-be/internal/pkg/serverutils"
	"crewtalk-be/internal/service"
	internalWS "crewtalk-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	AddAgent(ctx *fiber.Ctx) error
	SetAgentActive(ctx *fiber.Ctx) error
	Start(ctx *fiber.Ctx) error
	Pause(ctx *fiber.Ctx) error
	Resume(ctx *fiber.Ctx) error
	Advance(ctx *fiber.Ctx) error
	Stop(ctx *fiber.Ctx) error
	UpdateNotepad(ctx *fiber.Ctx) error
	Snapshot(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewSessionController(service service.ISessionService, hub *internalWS.Hub, log logger.ILogger) ISessionController {
	return &sessionController{service: service, hub: hub, logger: log}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Post("", c.Create)
	h.Post(":id/agents", c.AddAgent)
	h.Patch(":id/agents/:agentId", c.SetAgentActive)
	h.Post(":id/start", c.Start)
	h.Post(":id/pause", c.Pause)
	h.Post(":id/resume", c.Resume)
	h.Post(":id/advance", c.Advance)
	h.Post(":id/stop", c.Stop)
	h.Put(":id/notepad", c.UpdateNotepad)
	h.Get(":id/snapshot", c.Snapshot)
	h.Get(":id/export", c.Export)
	h.Get(":id/stream", c.Stream)
}

func sessionIdParam(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}
	return id, nil
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *sessionController) AddAgent(ctx *fiber.Ctx) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	var req dto.AddAgentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.AddAgent(ctx.Context(), id, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success add agent", res))
}

func (c *sessionController) SetAgentActive(ctx *fiber.Ctx) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}
	agentId, err := uuid.Parse(ctx.Params("agentId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid agent id")
	}

	var req dto.SetAgentActiveRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SetAgentActive(ctx.Context(), id, agentId, *req.IsActive)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update agent", res))
}

func (c *sessionController) Start(ctx *fiber.Ctx) error {
	return c.lifecycle(ctx, c.service.Start, "Session started")
}

func (c *sessionController) Pause(ctx *fiber.Ctx) error {
	return c.lifecycle(ctx, c.service.Pause, "Session paused")
}

func (c *sessionController) Resume(ctx *fiber.Ctx) error {
	return c.lifecycle(ctx, c.service.Resume, "Session resumed")
}

func (c *sessionController) Advance(ctx *fiber.Ctx) error {
	return c.lifecycle(ctx, c.service.Advance, "Phase advance requested")
}

func (c *sessionController) Stop(ctx *fiber.Ctx) error {
	return c.lifecycle(ctx, c.service.Stop, "Session stopped")
}

func (c *sessionController) UpdateNotepad(ctx *fiber.Ctx) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	var req dto.UpdateNotepadRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.UpdateNotepad(ctx.Context(), id, &req); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success update notepad", nil))
}

func (c *sessionController) Snapshot(ctx *fiber.Ctx) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Snapshot(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session snapshot", res))
}

func (c *sessionController) Export(ctx *fiber.Ctx) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Export(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success export session", res))
}

// Stream upgrades the connection and subscribes it to the session's live
// event stream. There is no replay: clients resynchronize via Snapshot.
func (c *sessionController) Stream(ctx *fiber.Ctx) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	exists, err := c.service.SessionExists(ctx.Context(), id)
	if err != nil {
		return err
	}
	if !exists {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	if websocket.IsWebSocketUpgrade(ctx) {
		return websocket.New(func(conn *websocket.Conn) {
			c.logger.Info("SessionController", "Stream subscriber connected", map[string]interface{}{"session_id": id})
			internalWS.ServeWs(c.hub, conn, id)
			c.logger.Info("SessionController", "Stream subscriber disconnected", map[string]interface{}{"session_id": id})
		})(ctx)
	}
	return fiber.ErrUpgradeRequired
}

func (c *sessionController) lifecycle(
	ctx *fiber.Ctx,
	command func(context.Context, uuid.UUID) (*dto.LifecycleResponse, error),
	message string,
) error {
	id, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	res, err := command(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse(message, res))
}
