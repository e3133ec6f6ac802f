package chatclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// ChatsInRoomOptions filters GetChatsInRoom.
type ChatsInRoomOptions struct {
	ParticipantID uuid.UUID
}

// SearchChatsOptions filters SearchChats. ParticipantID is required.
type SearchChatsOptions struct {
	ParticipantID    uuid.UUID
	Content          string
	ParticipantEmail string
}

// CreateChat posts a message into a room.
func (c *Client) CreateChat(ctx context.Context, input ChatInput) (Chat, error) {
	if input.RoomID == uuid.Nil {
		return Chat{}, invalid("room_id", "is required")
	}
	if input.ParticipantID == uuid.Nil {
		return Chat{}, invalid("participant_id", "is required")
	}
	return call[Chat](ctx, c, "create chat", http.MethodPost, "/rooms/chats/", input, nil)
}

// GetChatsInRoom lists the messages of a room, optionally for one participant.
func (c *Client) GetChatsInRoom(ctx context.Context, roomID uuid.UUID, opts ChatsInRoomOptions) (Page[Chat], error) {
	if roomID == uuid.Nil {
		return Page[Chat]{}, invalid("room_id", "is required")
	}
	params := url.Values{}
	setUUID(params, "participant_id", opts.ParticipantID)
	return call[Page[Chat]](ctx, c, "get chats in room", http.MethodGet, "/rooms/"+roomID.String()+"/chats/", nil, params)
}

// GetRoomMessages lists the messages of a room page by page.
func (c *Client) GetRoomMessages(ctx context.Context, roomID uuid.UUID, opts ListOptions) (Page[Chat], error) {
	if roomID == uuid.Nil {
		return Page[Chat]{}, invalid("room_id", "is required")
	}
	return call[Page[Chat]](ctx, c, "get room messages", http.MethodGet, "/rooms/"+roomID.String()+"/chats/", nil, opts.values())
}

// GetChat fetches one message.
func (c *Client) GetChat(ctx context.Context, chatID uuid.UUID) (Chat, error) {
	if chatID == uuid.Nil {
		return Chat{}, invalid("chat_id", "is required")
	}
	return call[Chat](ctx, c, "get chat", http.MethodGet, "/rooms/chats/"+chatID.String()+"/", nil, nil)
}

// UpdateChat edits a message.
func (c *Client) UpdateChat(ctx context.Context, chatID uuid.UUID, update ChatUpdate) (Chat, error) {
	if chatID == uuid.Nil {
		return Chat{}, invalid("chat_id", "is required")
	}
	return call[Chat](ctx, c, "update chat", http.MethodPatch, "/rooms/"+chatID.String()+"/chats/", update, nil)
}

// DeleteChat deletes a message.
func (c *Client) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	if chatID == uuid.Nil {
		return invalid("chat_id", "is required")
	}
	_, err := c.execute(ctx, http.MethodDelete, "/rooms/"+chatID.String()+"/chats", nil, nil, nil)
	return err
}

// SearchChats searches the messages of a room as seen by a participant.
func (c *Client) SearchChats(ctx context.Context, roomID uuid.UUID, opts SearchChatsOptions) (Page[Chat], error) {
	if roomID == uuid.Nil {
		return Page[Chat]{}, invalid("room_id", "is required")
	}
	if opts.ParticipantID == uuid.Nil {
		return Page[Chat]{}, invalid("participant_id", "is required")
	}
	params := url.Values{}
	setUUID(params, "participant_id", opts.ParticipantID)
	setString(params, "content", opts.Content)
	setString(params, "participant_email", opts.ParticipantEmail)
	return call[Page[Chat]](ctx, c, "search chats", http.MethodGet, "/rooms/"+roomID.String()+"/chats/search", nil, params)
}
