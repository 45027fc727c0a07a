package handlers

import (
	"errors"
	"strconv"
	"time"

	"chatsync/internal/services"
	"chatsync/models"

	"github.com/gofiber/fiber/v2"
)

// API bundles the REST handlers' dependencies. The room manager is included
// so mutations can fan out their push events (messageDeleted, messageEdited).
type API struct {
	Chat    *services.ChatService
	Polls   *services.PollService
	Users   *services.UserService
	Manager *RoomManager
}

func NewAPI(chat *services.ChatService, polls *services.PollService, users *services.UserService, manager *RoomManager) *API {
	return &API{Chat: chat, Polls: polls, Users: users, Manager: manager}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound),
		errors.Is(err, models.ErrMessageNotFound),
		errors.Is(err, models.ErrPollNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrNotSender), errors.Is(err, models.ErrNotCreator):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrEmptyMessage),
		errors.Is(err, models.ErrInvalidPayload),
		errors.Is(err, models.ErrInvalidVote),
		errors.Is(err, models.ErrPollClosed):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func jsonError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

// CreateRoom handles POST /api/rooms
func (a *API) CreateRoom(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)

	var req models.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	res, err := a.Chat.CreateRoom(c.Context(), userID, req)
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// RoomDetails handles GET /api/rooms/:id — the seed for a client session.
// Live online flags are merged into the roster before it goes out.
func (a *API) RoomDetails(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	roomID := c.Params("id")

	member, err := a.Chat.IsRoomMember(c.Context(), roomID, userID)
	if err != nil {
		return jsonError(c, err)
	}
	if !member {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a room member"})
	}

	details, err := a.Chat.RoomDetails(c.Context(), roomID, 50)
	if err != nil {
		return jsonError(c, err)
	}
	for i := range details.Members {
		details.Members[i].IsOnline = a.Manager.IsUserOnline(details.Members[i].UserID)
	}
	return c.JSON(details)
}

// SendMessage handles POST /api/rooms/:id/messages. The response omits
// sender_name — the sending client attaches its own display name, and the
// relay it pushes afterwards carries the name for everyone else.
func (a *API) SendMessage(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	roomID := c.Params("id")

	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	payload, err := req.Payload()
	if err != nil {
		return jsonError(c, err)
	}
	if req.Empty() {
		return jsonError(c, models.ErrEmptyMessage)
	}

	member, err := a.Chat.IsRoomMember(c.Context(), roomID, userID)
	if err != nil {
		return jsonError(c, err)
	}
	if !member {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a room member"})
	}

	msg := models.Message{
		Room:     roomID,
		SenderID: userID,
		Text:     req.Text,
		Payload:  payload,
	}
	if req.ReplyMessageID != 0 {
		reply, err := a.Chat.MessageByID(c.Context(), req.ReplyMessageID)
		if err != nil {
			return jsonError(c, err)
		}
		sender, err := a.Users.UserByID(c.Context(), reply.SenderID)
		if err != nil {
			return jsonError(c, err)
		}
		msg.ReplyToID = reply.ID
		msg.ReplySenderName = sender.FullName
		msg.ReplyText = reply.Text
		if reply.Payload.IsZero() {
			msg.ReplyKind = models.PayloadText
		} else {
			msg.ReplyKind = reply.Payload.Kind
		}
	}

	if err := a.Chat.SaveMessage(c.Context(), &msg, req.ScheduledAt); err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// DeleteMessage handles DELETE /api/messages/:id and pushes the removal to
// the room.
func (a *API) DeleteMessage(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}

	msg, err := a.Chat.DeleteMessage(c.Context(), messageID, userID)
	if err != nil {
		return jsonError(c, err)
	}

	a.Manager.Broadcast(msg.Room, models.WSEvent{
		Event:     models.EventMessageDeleted,
		Room:      msg.Room,
		MessageID: messageID,
		Timestamp: time.Now().UnixMilli(),
	}, "")
	return c.JSON(fiber.Map{"deleted": messageID})
}

// EditMessage handles PUT /api/messages/:id and pushes the edit to the room.
func (a *API) EditMessage(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}

	var req models.EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.Text == "" {
		return jsonError(c, models.ErrEmptyMessage)
	}

	msg, err := a.Chat.EditMessage(c.Context(), messageID, userID, req.Text)
	if err != nil {
		return jsonError(c, err)
	}

	edited := *msg
	a.Manager.Broadcast(msg.Room, models.WSEvent{
		Event:     models.EventMessageEdited,
		Room:      msg.Room,
		Message:   &edited,
		Timestamp: time.Now().UnixMilli(),
	}, "")
	return c.JSON(msg)
}

// CreatePoll handles POST /api/polls
func (a *API) CreatePoll(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)

	var req models.CreatePollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	poll, err := a.Polls.CreatePoll(c.Context(), userID, req)
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(poll)
}

// GetPoll handles GET /api/polls/:id
func (a *API) GetPoll(c *fiber.Ctx) error {
	pollID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid poll id"})
	}

	poll, err := a.Polls.GetPoll(c.Context(), pollID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(poll)
}

// Vote handles POST /api/polls/:id/vote. The body's identifiers must match
// the path and the authenticated user.
func (a *API) Vote(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	pollID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid poll id"})
	}

	var req models.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.PollID != 0 && req.PollID != pollID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "poll id mismatch"})
	}
	if req.UserID != 0 && req.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "cannot vote for another user"})
	}

	if err := a.Polls.Vote(c.Context(), pollID, userID, req.SelectedOptionIDs); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// TogglePoll handles POST /api/polls/:id/toggle
func (a *API) TogglePoll(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	pollID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid poll id"})
	}

	if err := a.Polls.ToggleStatus(c.Context(), pollID, userID); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// EditPoll handles PUT /api/polls/:id
func (a *API) EditPoll(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int64)
	pollID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid poll id"})
	}

	var req models.EditPollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	if err := a.Polls.EditPoll(c.Context(), pollID, userID, req); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
