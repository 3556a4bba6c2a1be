package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/meownm/ai-rag-sub000/internal/dto"
	"github.com/meownm/ai-rag-sub000/internal/pkg/serverutils"
	"github.com/meownm/ai-rag-sub000/internal/service"
)

type IQueryController interface {
	RegisterRoutes(r fiber.Router)
	Ask(ctx *fiber.Ctx) error
}

type queryController struct {
	queryService service.IQueryService
}

func NewQueryController(queryService service.IQueryService) IQueryController {
	return &queryController{
		queryService: queryService,
	}
}

func (c *queryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/query/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("ask", c.Ask)
}

func (c *queryController) Ask(ctx *fiber.Ctx) error {
	tenantIdStr, ok := ctx.Locals("tenant_id").(string)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "missing tenant")
	}
	tenantId, err := uuid.Parse(tenantIdStr)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid tenant id")
	}

	userId, ok := ctx.Locals("user_id").(string)
	if !ok || userId == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}

	var req dto.AskRequest
	if err := serverutils.ValidateRequest(ctx, &req); err != nil {
		return err
	}

	res, err := c.queryService.Ask(ctx.Context(), tenantId, userId, &req)
	if err != nil {
		return err
	}

	return serverutils.SuccessResponse(ctx, fiber.StatusOK, "query answered", res)
}
