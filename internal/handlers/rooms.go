package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/middleware"
	"github.com/KaranNegi08/chatZila/internal/service"
)

type RoomHandler struct {
	rooms    *service.RoomService
	workflow *service.WorkflowService
}

func NewRoomHandler(rooms *service.RoomService, workflow *service.WorkflowService) *RoomHandler {
	return &RoomHandler{rooms: rooms, workflow: workflow}
}

func (h *RoomHandler) Create(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"isPrivate"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	room, err := h.rooms.Create(c.Context(), uid, req.Name, req.Description, req.IsPrivate)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room": room})
}

func (h *RoomHandler) MyRooms(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	rooms, err := h.rooms.MyRooms(c.Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

func (h *RoomHandler) Available(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	rooms, err := h.rooms.Available(c.Context(), uid, c.Query("search"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

func (h *RoomHandler) Members(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	roomID, err := primitive.ObjectIDFromHex(c.Params("roomId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid room id"))
	}
	members, err := h.rooms.Members(c.Context(), roomID, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"members": members})
}

func (h *RoomHandler) JoinRequest(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	roomID, err := primitive.ObjectIDFromHex(c.Params("roomId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid room id"))
	}
	if _, err := h.workflow.RequestJoin(c.Context(), uid, roomID); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "join request sent"})
}

func (h *RoomHandler) Invite(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	roomID, err := primitive.ObjectIDFromHex(c.Params("roomId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid room id"))
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if _, err := h.workflow.Invite(c.Context(), uid, roomID, req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "invitation sent"})
}
