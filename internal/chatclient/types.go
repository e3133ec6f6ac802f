package chatclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Page is the paginated envelope returned by every list and search endpoint.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// Participant is a member of a remote room. Email is its external identity.
type Participant struct {
	ID       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Token    string         `json:"token,omitempty"`
	Timezone string         `json:"timezone,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Room is a remote chat room.
type Room struct {
	ID                  uuid.UUID        `json:"id"`
	Name                string           `json:"name"`
	Tags                []string         `json:"tags"`
	OrganisationID      *uuid.UUID       `json:"organisation_id,omitempty"`
	UnreadCount         int              `json:"unread_count"`
	Participants        []Participant    `json:"participants"`
	IsArchived          bool             `json:"is_archived"`
	LastChat            []Chat           `json:"last_chat,omitempty"`
	UnreadParticipants  []map[string]any `json:"unread_participants,omitempty"`
	DormantParticipants []map[string]any `json:"dormant_participants,omitempty"`
}

// Chat is a single message in a room.
type Chat struct {
	ID          uuid.UUID    `json:"id"`
	Content     string       `json:"content"`
	RoomID      uuid.UUID    `json:"room_id"`
	CreatedBy   *Participant `json:"created_by,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file attached to a chat.
type Attachment struct {
	ID               uuid.UUID        `json:"id"`
	URL              string           `json:"url"`
	Filename         string           `json:"filename"`
	S3Key            string           `json:"s3_key"`
	MimeType         string           `json:"mime_type"`
	FileSize         int64            `json:"file_size"`
	CreatedBy        *uuid.UUID       `json:"created_by,omitempty"`
	UploadFinishedAt *time.Time       `json:"upload_finished_at,omitempty"`
	PresignedData    *PresignedUpload `json:"presigned_data,omitempty"`
	Thumbnail        string           `json:"thumbnail,omitempty"`
	DownloadURL      string           `json:"download_url,omitempty"`
}

// PresignedUpload is a time-limited descriptor for uploading a file
// directly to object storage with a multipart POST.
type PresignedUpload struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// UnmarshalJSON accepts both {"url", "fields": {...}} and the flat form
// where every key other than "url" is a form field.
func (p *PresignedUpload) UnmarshalJSON(data []byte) error {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}

	*p = PresignedUpload{}
	if raw, ok := object["url"]; ok {
		if err := json.Unmarshal(raw, &p.URL); err != nil {
			return fmt.Errorf("presigned url: %w", err)
		}
		delete(object, "url")
	}

	if raw, ok := object["fields"]; ok && len(object) == 1 {
		var nested map[string]any
		if err := json.Unmarshal(raw, &nested); err != nil {
			return fmt.Errorf("presigned fields: %w", err)
		}
		p.Fields = stringify(nested)
		return nil
	}

	flat := make(map[string]any, len(object))
	for key, raw := range object {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("presigned field %s: %w", key, err)
		}
		flat[key] = value
	}
	p.Fields = stringify(flat)
	return nil
}

func stringify(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			out[key] = v
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}

// ParticipantInput identifies a participant by email when creating or
// extending a room.
type ParticipantInput struct {
	Name  string         `json:"name,omitempty"`
	Email string         `json:"email"`
	Data  map[string]any `json:"data,omitempty"`
}

// RoomInput is the body of CreateRoom.
type RoomInput struct {
	Name         string             `json:"name"`
	Participants []ParticipantInput `json:"participants"`
	Tags         []string           `json:"tags"`
	IsArchived   bool               `json:"is_archived"`
	ObjectType   string             `json:"object_type,omitempty"`
	ObjectID     string             `json:"object_id,omitempty"`
}

// RoomUpdate is the partial body of UpdateRoom. Nil fields are not sent.
type RoomUpdate struct {
	Name         *string            `json:"name,omitempty"`
	Tags         *[]string          `json:"tags,omitempty"`
	IsArchived   *bool              `json:"is_archived,omitempty"`
	Participants []ParticipantInput `json:"participants,omitempty"`
}

// ChatInput is the body of CreateChat.
type ChatInput struct {
	Content       string      `json:"content,omitempty"`
	RoomID        uuid.UUID   `json:"room_id"`
	ParticipantID uuid.UUID   `json:"participant_id"`
	Attachments   []uuid.UUID `json:"attachments,omitempty"`
}

// ChatUpdate is the partial body of UpdateChat.
type ChatUpdate struct {
	Content     *string     `json:"content,omitempty"`
	Attachments []uuid.UUID `json:"attachments,omitempty"`
}

// AttachmentInput describes a file about to be uploaded.
type AttachmentInput struct {
	Filename      string    `json:"filename"`
	MimeType      string    `json:"mime_type,omitempty"`
	ParticipantID uuid.UUID `json:"participant_id"`
}
