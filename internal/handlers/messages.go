package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/middleware"
	"github.com/KaranNegi08/chatZila/internal/models"
	"github.com/KaranNegi08/chatZila/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) List(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	roomID, err := primitive.ObjectIDFromHex(c.Params("roomId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid room id"))
	}
	msgs, err := h.messages.List(c.Context(), roomID, uid,
		int64(c.QueryInt("page", 1)), int64(c.QueryInt("limit", 50)))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (h *MessageHandler) Post(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	roomID, err := primitive.ObjectIDFromHex(c.Params("roomId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid room id"))
	}
	var req struct {
		Content string           `json:"content"`
		Type    string           `json:"type"`
		ReplyTo string           `json:"replyTo"`
		File    *models.FileInfo `json:"file"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}

	in := service.PostInput{
		RoomID:   roomID,
		SenderID: uid,
		Content:  req.Content,
		Kind:     models.MessageKind(req.Type),
		File:     req.File,
	}
	if req.ReplyTo != "" {
		replyTo, err := primitive.ObjectIDFromHex(req.ReplyTo)
		if err != nil {
			return fail(c, apperr.Validation("invalid replyTo id"))
		}
		in.ReplyTo = &replyTo
	}

	msg, err := h.messages.Post(c.Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	messageID, err := primitive.ObjectIDFromHex(c.Params("messageId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid message id"))
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	msg, err := h.messages.Edit(c.Context(), messageID, uid, req.Content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	messageID, err := primitive.ObjectIDFromHex(c.Params("messageId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid message id"))
	}
	if err := h.messages.Delete(c.Context(), messageID, uid); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "deleted"})
}

func (h *MessageHandler) ToggleReaction(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	messageID, err := primitive.ObjectIDFromHex(c.Params("messageId"))
	if err != nil {
		return fail(c, apperr.Validation("invalid message id"))
	}
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	reactions, err := h.messages.ToggleReaction(c.Context(), messageID, uid, req.Emoji)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"reactions": reactions})
}
