// internal/api/client.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/transport"
)

const prefix = "/api/v1"

// Client binds the game server's HTTP endpoints onto a transport.
type Client struct {
	t *transport.Client
}

// New wraps t.
func New(t *transport.Client) *Client {
	return &Client{t: t}
}

// Login creates a new server session for username. It needs no identity.
func (c *Client) Login(ctx context.Context, username string) (*models.SessionInfo, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username required")
	}
	var out models.SessionInfo
	if err := c.t.DoPublic(ctx, http.MethodPost, prefix+"/session", map[string]string{"username": username}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me confirms the current identity with the server.
func (c *Client) Me(ctx context.Context) (*models.SessionInfo, error) {
	var out models.SessionInfo
	if err := c.t.Do(ctx, http.MethodGet, prefix+"/session/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.t.Do(ctx, http.MethodPost, prefix+"/session/logout", struct{}{}, nil)
}

// ListRooms fetches the lobby, returning NotModified when version is unchanged.
func (c *Client) ListRooms(ctx context.Context, sinceVersion int64) (*models.RoomList, error) {
	var out models.RoomList
	path := fmt.Sprintf("%s/rooms?sinceVersion=%d", prefix, sinceVersion)
	if err := c.t.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRoom opens a room owned by the caller.
func (c *Client) CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.RoomSummary, error) {
	var out models.RoomSummary
	if err := c.t.Do(ctx, http.MethodPost, prefix+"/rooms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Room returns the bindings scoped to one room.
func (c *Client) Room(roomID string) *Room {
	return &Room{t: c.t, base: prefix + "/rooms/" + url.PathEscape(roomID)}
}

// Room holds the per-room endpoints.
type Room struct {
	t    *transport.Client
	base string
}

// GetState asks for the state newer than sinceVersion.
func (r *Room) GetState(ctx context.Context, sinceVersion int64) (*models.StateSnapshot, error) {
	var out models.StateSnapshot
	path := fmt.Sprintf("%s/state?sinceVersion=%d", r.base, sinceVersion)
	if err := r.t.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAction posts one player action.
func (r *Room) SubmitAction(ctx context.Context, req models.ActionRequest) (*models.ActionAck, error) {
	var out models.ActionAck
	if err := r.t.Do(ctx, http.MethodPost, r.base+"/actions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PollQuickChats fetches quick-chat events newer than sinceEventID.
func (r *Room) PollQuickChats(ctx context.Context, sinceEventID int64) (*models.QuickChatPoll, error) {
	var out models.QuickChatPoll
	path := fmt.Sprintf("%s/quick-chats?sinceEventId=%d", r.base, sinceEventID)
	if err := r.t.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendQuickChat broadcasts one phrase.
func (r *Room) SendQuickChat(ctx context.Context, req models.QuickChatRequest) (*models.QuickChatAck, error) {
	var out models.QuickChatAck
	if err := r.t.Do(ctx, http.MethodPost, r.base+"/quick-chats", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Join takes a seat in the room.
func (r *Room) Join(ctx context.Context) error {
	return r.t.Do(ctx, http.MethodPost, r.base+"/join", struct{}{}, nil)
}

// Start begins the first hand. Owner only.
func (r *Room) Start(ctx context.Context) error {
	return r.t.Do(ctx, http.MethodPost, r.base+"/start", struct{}{}, nil)
}

// NextHand deals the next hand once the current one is finished. Owner only.
func (r *Room) NextHand(ctx context.Context) error {
	return r.t.Do(ctx, http.MethodPost, r.base+"/next-hand", struct{}{}, nil)
}

// Leave gives up the seat.
func (r *Room) Leave(ctx context.Context) error {
	return r.t.Do(ctx, http.MethodPost, r.base+"/leave", struct{}{}, nil)
}
