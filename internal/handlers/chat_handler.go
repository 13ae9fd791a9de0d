package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/tageampi/vintohub/internal/middleware"
	"github.com/tageampi/vintohub/internal/models"
	"github.com/tageampi/vintohub/internal/services"
	chatws "github.com/tageampi/vintohub/internal/websocket"
	"github.com/tageampi/vintohub/pkg/utils"
)

const wsUserIDLocal = "ws_user_id"

var errMissingToken = errors.New("missing token")

type chatApplicationService interface {
	ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, viewerID int64, otherID int64) ([]models.Message, error)
}

type ChatHandler struct {
	service      chatApplicationService
	router       *chatws.Router
	jwtSecret    string
	requireToken bool
	sendBuffer   int
	log          *slog.Logger
}

type ChatHandlerOptions struct {
	JWTSecret    string
	RequireToken bool
	SendBuffer   int
}

func NewChatHandler(
	service chatApplicationService,
	router *chatws.Router,
	opts ChatHandlerOptions,
	log *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		service:      service,
		router:       router,
		jwtSecret:    opts.JWTSecret,
		requireToken: opts.RequireToken,
		sendBuffer:   opts.SendBuffer,
		log:          log,
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.ListConversations(c.Context(), userID)
	if err != nil {
		return h.mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

// GetConversation returns the thread with :userId and marks what that user
// sent to the caller as read.
func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	otherID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || otherID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	messages, err := h.service.GetConversation(c.Context(), userID, otherID)
	if err != nil {
		return h.mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

// WebSocketAuth guards the upgrade. A valid token pins the connection to its
// user; without one the client authenticates with an auth frame, unless
// tokens are required.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	switch {
	case errors.Is(err, errMissingToken):
		if h.requireToken {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
		}
		return c.Next()
	case err != nil:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	userID, err := utils.UserIDFromClaims(claims)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	c.Locals(wsUserIDLocal, userID)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	client := chatws.NewConn(conn, h.sendBuffer)
	if userID, ok := conn.Locals(wsUserIDLocal).(int64); ok {
		client.Pin(userID)
	}

	h.router.Serve(context.Background(), client)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		if bearer, ok := middleware.BearerToken(c); ok {
			tokenString = bearer
		}
	}

	if tokenString == "" {
		return nil, errMissingToken
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(userIDStr, 10, 64)
}

func (h *ChatHandler) mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	default:
		h.log.Error("Chat request failed", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
