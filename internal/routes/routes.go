// Package routes wires the fiber app: middleware, REST groups, and the
// websocket upgrade endpoint.
package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/KaranNegi08/chatZila/internal/handlers"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Rooms         *handlers.RoomHandler
	Messages      *handlers.MessageHandler
	Notifications *handlers.NotificationHandler
	WS            *handlers.WSHandler
	JWT           fiber.Handler
}

func Register(app *fiber.App, h Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/logout", h.JWT, h.Auth.Logout)
	authGroup.Get("/me", h.JWT, h.Auth.Me)

	rooms := api.Group("/rooms", h.JWT)
	rooms.Post("/", h.Rooms.Create)
	rooms.Get("/my-rooms", h.Rooms.MyRooms)
	rooms.Get("/available", h.Rooms.Available)
	rooms.Get("/:roomId/members", h.Rooms.Members)
	rooms.Post("/:roomId/join-request", h.Rooms.JoinRequest)
	rooms.Post("/:roomId/invite", h.Rooms.Invite)

	notifications := api.Group("/notifications", h.JWT)
	notifications.Get("/", h.Notifications.List)
	notifications.Put("/mark-all-read", h.Notifications.MarkAllRead)
	notifications.Put("/:notificationId/read", h.Notifications.MarkRead)
	notifications.Post("/:notificationId/respond", h.Notifications.Respond)

	messages := api.Group("/messages", h.JWT)
	messages.Get("/:roomId", h.Messages.List)
	messages.Post("/:roomId", h.Messages.Post)
	messages.Put("/:messageId", h.Messages.Edit)
	messages.Delete("/:messageId", h.Messages.Delete)
	messages.Post("/:messageId/reaction", h.Messages.ToggleReaction)

	// Websocket upgrade; auth happens inside Serve via the token query
	// parameter since browsers cannot set headers on ws connects.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.WS.Serve))
}
