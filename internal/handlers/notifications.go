package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/middleware"
	"github.com/KaranNegi08/chatZila/internal/service"
)

type NotificationHandler struct {
	workflow *service.WorkflowService
}

func NewNotificationHandler(workflow *service.WorkflowService) *NotificationHandler {
	return &NotificationHandler{workflow: workflow}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	page, err := h.workflow.List(c.Context(), uid,
		int64(c.QueryInt("page", 1)),
		int64(c.QueryInt("limit", 20)),
		c.QueryBool("unreadOnly", false))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(page)
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	id, err := primitive.ObjectIDFromHex(c.Params("notificationId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid notification id"))
	}
	if err := h.workflow.MarkRead(c.Context(), id, uid); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "marked read"})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	if err := h.workflow.MarkAllRead(c.Context(), uid); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "all notifications marked as read"})
}

func (h *NotificationHandler) Respond(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	id, err := primitive.ObjectIDFromHex(c.Params("notificationId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid notification id"))
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	n, err := h.workflow.Respond(c.Context(), id, uid, req.Action)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"notification": n})
}
