package chatclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// GetRoomOptions are the optional query parameters of GetRoom.
type GetRoomOptions struct {
	ParticipantID uuid.UUID
	LastNMessages *int
	FetchOnly     bool
}

// SearchRoomsOptions filters SearchRooms. Empty fields are not sent.
type SearchRoomsOptions struct {
	Name             string
	ParticipantEmail string
}

// CreateRoom creates a remote room with the given participants.
func (c *Client) CreateRoom(ctx context.Context, input RoomInput) (Room, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Room{}, invalid("name", "is required")
	}
	if err := validateParticipants(input.Participants); err != nil {
		return Room{}, err
	}
	if input.Tags == nil {
		input.Tags = []string{}
	}
	return call[Room](ctx, c, "create room", http.MethodPost, "/rooms/", input, nil)
}

// GetRooms lists rooms visible to the organisation.
func (c *Client) GetRooms(ctx context.Context, opts ListOptions) (Page[Room], error) {
	return call[Page[Room]](ctx, c, "get rooms", http.MethodGet, "/rooms/", nil, opts.values())
}

// GetRoom fetches one room. Unset options are omitted from the query.
func (c *Client) GetRoom(ctx context.Context, roomID uuid.UUID, opts GetRoomOptions) (Room, error) {
	if roomID == uuid.Nil {
		return Room{}, invalid("room_id", "is required")
	}
	params := url.Values{}
	setUUID(params, "participant_id", opts.ParticipantID)
	setInt(params, "last_n_messages", opts.LastNMessages)
	setTrue(params, "fetch_only", opts.FetchOnly)
	return call[Room](ctx, c, "get room", http.MethodGet, "/rooms/"+roomID.String()+"/", nil, params)
}

// UpdateRoom applies a partial update to a room.
func (c *Client) UpdateRoom(ctx context.Context, roomID uuid.UUID, update RoomUpdate) (Room, error) {
	if roomID == uuid.Nil {
		return Room{}, invalid("room_id", "is required")
	}
	if len(update.Participants) > 0 {
		if err := validateParticipants(update.Participants); err != nil {
			return Room{}, err
		}
	}
	return call[Room](ctx, c, "update room", http.MethodPatch, "/rooms/"+roomID.String()+"/", update, nil)
}

// DeleteRoom removes participantID from the room as part of deleting it
// from that participant's point of view.
func (c *Client) DeleteRoom(ctx context.Context, roomID, participantID uuid.UUID) error {
	if roomID == uuid.Nil {
		return invalid("room_id", "is required")
	}
	if participantID == uuid.Nil {
		return invalid("participant_id", "is required")
	}
	_, err := c.execute(ctx, http.MethodDelete, "/rooms/"+roomID.String()+"/"+participantID.String(), nil, nil, nil)
	return err
}

// SearchRooms searches rooms by name or participant email.
func (c *Client) SearchRooms(ctx context.Context, opts SearchRoomsOptions) (Page[Room], error) {
	params := url.Values{}
	setString(params, "name", opts.Name)
	setString(params, "participant_email", opts.ParticipantEmail)
	return call[Page[Room]](ctx, c, "search rooms", http.MethodGet, "/rooms/search", nil, params)
}

// GetUnreadMessages lists rooms with unread messages for a participant.
func (c *Client) GetUnreadMessages(ctx context.Context, participantID uuid.UUID, opts ListOptions) (Page[Room], error) {
	if participantID == uuid.Nil {
		return Page[Room]{}, invalid("participant_id", "is required")
	}
	return call[Page[Room]](ctx, c, "get unread messages", http.MethodGet, "/rooms/unread/"+participantID.String()+"/", nil, opts.values())
}

// GetRoomsNeverOpened lists rooms the participant has never opened.
func (c *Client) GetRoomsNeverOpened(ctx context.Context, participantID uuid.UUID, opts ListOptions) (Page[Room], error) {
	if participantID == uuid.Nil {
		return Page[Room]{}, invalid("participant_id", "is required")
	}
	return call[Page[Room]](ctx, c, "get rooms never opened", http.MethodGet, "/rooms/"+participantID.String()+"/rooms-never-opened/", nil, opts.values())
}

func validateParticipants(participants []ParticipantInput) error {
	if len(participants) == 0 {
		return invalid("participants", "at least one participant is required")
	}
	for _, participant := range participants {
		if strings.TrimSpace(participant.Email) == "" {
			return invalid("participants", "email is required for every participant")
		}
	}
	return nil
}
