// Package client is the real-time synchronization SDK for the chat feature.
// It keeps a locally rendered message list consistent with the server while
// sends are confirmed asynchronously, tracks live room presence over the
// push connection, and serves entity state (polls) through a shared
// stale-while-revalidate cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"chatsync/models"
)

// Config holds everything needed to talk to one chat server.
type Config struct {
	// BaseURL is the server's HTTP base, e.g. "http://localhost:3001".
	BaseURL string
	// Token is the JWT access token obtained from login.
	Token string
	// HTTPClient is used for all REST requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
}

// Client is the entry point of the SDK. It owns the REST transport and the
// single process-lifetime push connection; every room session and cache is
// created through it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu   sync.Mutex
	conn *Conn
}

// New creates a Client. The push connection is established lazily on the
// first Connect call.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
	}, nil
}

// SetToken replaces the access token used by REST calls and future connects.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// do performs a JSON round trip. A nil out discards the response body;
// passing a *[]byte out captures it raw.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = raw
		return nil
	default:
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("client: decoding response: %w", err)
		}
		return nil
	}
}

// Register creates an account and returns the auth response.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// RoomDetails fetches the room, its member roster, and recent messages.
// This seeds local state when a room is opened.
func (c *Client) RoomDetails(ctx context.Context, roomID string) (*models.RoomDetails, error) {
	var resp models.RoomDetails
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage creates a message. The response may be one message or several
// (multi-payload sends); the server omits sender_name either way.
func (c *Client) SendMessage(ctx context.Context, roomID string, req models.SendMessageRequest) ([]models.Message, error) {
	var raw []byte
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(roomID)+"/messages", req, &raw); err != nil {
		return nil, err
	}
	return models.DecodeMessages(raw)
}

// DeleteMessage removes a message the caller sent.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+strconv.FormatInt(messageID, 10), nil, nil)
}

// EditMessage updates a message's text and returns the updated message.
func (c *Client) EditMessage(ctx context.Context, messageID int64, text string) (*models.Message, error) {
	var resp models.Message
	req := models.EditMessageRequest{Text: text}
	if err := c.do(ctx, http.MethodPut, "/api/messages/"+strconv.FormatInt(messageID, 10), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Poll fetches authoritative poll state.
func (c *Client) Poll(ctx context.Context, pollID int64) (models.Poll, error) {
	var resp models.Poll
	if err := c.do(ctx, http.MethodGet, "/api/polls/"+strconv.FormatInt(pollID, 10), nil, &resp); err != nil {
		return models.Poll{}, err
	}
	return resp, nil
}

// Vote submits a vote. The server resolves option replacement for
// single-choice polls; the response carries no poll state.
func (c *Client) Vote(ctx context.Context, req models.VoteRequest) error {
	return c.do(ctx, http.MethodPost, "/api/polls/"+strconv.FormatInt(req.PollID, 10)+"/vote", req, nil)
}

// TogglePoll flips a poll's active status.
func (c *Client) TogglePoll(ctx context.Context, pollID int64) error {
	return c.do(ctx, http.MethodPost, "/api/polls/"+strconv.FormatInt(pollID, 10)+"/toggle", nil, nil)
}

// EditPoll updates poll fields.
func (c *Client) EditPoll(ctx context.Context, pollID int64, req models.EditPollRequest) error {
	return c.do(ctx, http.MethodPut, "/api/polls/"+strconv.FormatInt(pollID, 10), req, nil)
}
