package chatclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ParticipantListOptions paginates GetParticipants and optionally filters
// by email.
type ParticipantListOptions struct {
	ListOptions
	Email string
}

// AddParticipants upserts participants into a room by email.
func (c *Client) AddParticipants(ctx context.Context, roomID uuid.UUID, participants []ParticipantInput) (Room, error) {
	if roomID == uuid.Nil {
		return Room{}, invalid("room_id", "is required")
	}
	if err := validateParticipants(participants); err != nil {
		return Room{}, err
	}
	return call[Room](ctx, c, "add participants", http.MethodPost, "/rooms/"+roomID.String()+"/add-participant/", participants, nil)
}

// AddParticipantsByIDs adds existing remote participants to a room.
func (c *Client) AddParticipantsByIDs(ctx context.Context, roomID uuid.UUID, participantIDs []uuid.UUID) (Room, error) {
	if roomID == uuid.Nil {
		return Room{}, invalid("room_id", "is required")
	}
	ids := lo.Uniq(lo.Without(participantIDs, uuid.Nil))
	if len(ids) == 0 {
		return Room{}, invalid("participant_ids", "at least one participant id is required")
	}
	return call[Room](ctx, c, "add participants by ids", http.MethodPost, "/rooms/"+roomID.String()+"/add-participants-by-ids/", ids, nil)
}

// AddParticipantsByEmails adds participants to a room by email.
func (c *Client) AddParticipantsByEmails(ctx context.Context, roomID uuid.UUID, emails []string) (Room, error) {
	if roomID == uuid.Nil {
		return Room{}, invalid("room_id", "is required")
	}
	cleaned := lo.Uniq(lo.Compact(lo.Map(emails, func(email string, _ int) string {
		return strings.TrimSpace(email)
	})))
	if len(cleaned) == 0 {
		return Room{}, invalid("participant_emails", "at least one email is required")
	}
	return call[Room](ctx, c, "add participants by emails", http.MethodPost, "/rooms/"+roomID.String()+"/add-participants-by-emails/", cleaned, nil)
}

// RemoveParticipant removes a participant from a room.
func (c *Client) RemoveParticipant(ctx context.Context, roomID, participantID uuid.UUID) (Room, error) {
	if roomID == uuid.Nil {
		return Room{}, invalid("room_id", "is required")
	}
	if participantID == uuid.Nil {
		return Room{}, invalid("participant_id", "is required")
	}
	return call[Room](ctx, c, "remove participant", http.MethodPost, "/rooms/"+roomID.String()+"/remove-participant/"+participantID.String()+"/", nil, nil)
}

// GetParticipants lists the participants of a room.
func (c *Client) GetParticipants(ctx context.Context, roomID uuid.UUID, opts ParticipantListOptions) (Page[Participant], error) {
	if roomID == uuid.Nil {
		return Page[Participant]{}, invalid("room_id", "is required")
	}
	params := opts.ListOptions.values()
	setString(params, "email", opts.Email)
	return call[Page[Participant]](ctx, c, "get participants", http.MethodGet, "/rooms/"+roomID.String()+"/participants/", nil, params)
}

// ParticipantByEmail finds the room participant with the given email. The
// boolean is false when the room has no such participant.
func (c *Client) ParticipantByEmail(ctx context.Context, roomID uuid.UUID, email string) (Participant, bool, error) {
	page, err := c.GetParticipants(ctx, roomID, ParticipantListOptions{Email: email})
	if err != nil {
		return Participant{}, false, err
	}
	participant, found := lo.Find(page.Items, func(p Participant) bool {
		return strings.EqualFold(p.Email, email)
	})
	return participant, found, nil
}

// GetParticipant fetches one participant.
func (c *Client) GetParticipant(ctx context.Context, participantID uuid.UUID) (Participant, error) {
	if participantID == uuid.Nil {
		return Participant{}, invalid("participant_id", "is required")
	}
	return call[Participant](ctx, c, "get participant", http.MethodGet, "/rooms/participant/"+participantID.String()+"/", nil, nil)
}

// GenerateParticipantToken issues a fresh access token for a participant.
func (c *Client) GenerateParticipantToken(ctx context.Context, participantID uuid.UUID) (Participant, error) {
	if participantID == uuid.Nil {
		return Participant{}, invalid("participant_id", "is required")
	}
	return call[Participant](ctx, c, "generate participant token", http.MethodPost, "/rooms/"+participantID.String()+"/generate-token/", nil, nil)
}
