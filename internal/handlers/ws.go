package handlers

import (
	"log"

	"chatsync/internal/services"
	"chatsync/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WS bundles the dependencies of the websocket layer.
type WS struct {
	Manager *RoomManager
	Chat    *services.ChatService
}

func NewWS(manager *RoomManager, chat *services.ChatService) *WS {
	return &WS{Manager: manager, Chat: chat}
}

// Handler upgrades and runs one websocket connection. The user identity
// comes from the validated token; the connection only starts receiving
// presence and room events after the client sends its identify event.
func (h *WS) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID := c.Locals("user_id").(int64)
		username, _ := c.Locals("username").(string)

		connID := uuid.New().String()
		client := &wsClient{conn: c}
		identified := false
		var currentRoom string

		defer func() {
			h.disconnect(connID, identified)
			c.Close()
		}()

		for {
			var ev models.WSEvent
			if err := c.ReadJSON(&ev); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket read: %v", err)
				}
				return
			}

			switch ev.Event {
			case models.EventIdentify:
				if !identified {
					identified = true
					h.handleIdentify(connID, userID, username, client)
				}
			case models.EventJoin:
				h.handleJoin(&currentRoom, ev.Room, connID)
			case models.EventLeave:
				h.handleLeave(&currentRoom, connID)
			case models.EventRelayMessage:
				h.handleRelay(ev, userID, username, client)
			case models.EventSeen:
				h.handleSeen(ev, userID, username, client)
			default:
				log.Printf("unknown websocket event: %s", ev.Event)
			}
		}
	})
}

// disconnect removes the connection and fans out the presence changes it
// causes: updated online sets for the rooms it was in, and a global offline
// delta when it was the user's last connection.
func (h *WS) disconnect(connID string, identified bool) {
	if !identified {
		return
	}
	userID, rooms, wasLast := h.Manager.Unregister(connID)
	for _, room := range rooms {
		h.broadcastOnlineUsers(room)
	}
	if wasLast {
		offline := false
		h.Manager.BroadcastToAll(models.WSEvent{
			Event:  models.EventUserStatus,
			UserID: userID,
			Online: &offline,
		})
	}
}

// UpgradeMiddleware upgrades the connection to WebSocket
func UpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT token before the handler runs
func AuthMiddleware(c *fiber.Ctx) error {
	// Get token from query param `access_token` or Authorization header
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	// claims["user_id"] comes as float64 from JSON
	if uid, ok := claims["user_id"].(float64); ok {
		c.Locals("user_id", int64(uid))
	} else {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	}

	return c.Next()
}
