package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/auth"
	"github.com/KaranNegi08/chatZila/internal/middleware"
	"github.com/KaranNegi08/chatZila/internal/models"
	"github.com/KaranNegi08/chatZila/internal/repository"
)

type AuthHandler struct {
	users repository.UserRepository
	jwt   *auth.Manager
	log   *zap.SugaredLogger
}

func NewAuthHandler(users repository.UserRepository, jwt *auth.Manager, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, log: log}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || len(req.Password) < 6 {
		return fail(c, apperr.Validation("username, email and a password of at least 6 characters are required"))
	}

	if _, err := h.users.FindByEmail(c.Context(), req.Email); err == nil {
		return fail(c, apperr.Conflict("email already exists"))
	}
	if _, err := h.users.FindByUsername(c.Context(), req.Username); err == nil {
		return fail(c, apperr.Conflict("username already exists"))
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return fail(c, err)
	}
	user, err := h.users.Create(c.Context(), &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hash,
	})
	if err != nil {
		return fail(c, err)
	}

	token, err := h.jwt.Sign(user.ID.Hex(), user.Username)
	if err != nil {
		return fail(c, err)
	}
	h.log.Infow("user registered", "user", user.ID.Hex())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token, "user": user})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}

	user, err := h.users.FindByEmail(c.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil || !auth.CheckPassword(user.Password, req.Password) {
		// Same response for unknown email and wrong password.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid credentials"})
	}

	if err := h.users.SetOnline(c.Context(), user.ID, true, time.Now().UTC()); err != nil {
		h.log.Warnw("set online", "user", user.ID.Hex(), "err", err)
	}

	token, err := h.jwt.Sign(user.ID.Hex(), user.Username)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

// Logout flips the user offline. Tokens stay valid until expiry; this
// only updates presence for clients that sign out without a socket.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	if err := h.users.SetOnline(c.Context(), uid, false, time.Now().UTC()); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return fail(c, apperr.Authorization("invalid identity"))
	}
	user, err := h.users.FindByID(c.Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}
