package chatclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CreateAttachments registers attachment descriptors and returns the
// records, each carrying presigned upload data.
func (c *Client) CreateAttachments(ctx context.Context, inputs []AttachmentInput) ([]Attachment, error) {
	if len(inputs) == 0 {
		return nil, invalid("attachments", "at least one attachment is required")
	}
	for _, input := range inputs {
		if err := validateAttachment(input); err != nil {
			return nil, err
		}
	}
	return call[[]Attachment](ctx, c, "create attachments", http.MethodPost, "/rooms/attachments/", inputs, nil)
}

// UpdateAttachment replaces an attachment descriptor.
func (c *Client) UpdateAttachment(ctx context.Context, attachmentID uuid.UUID, input AttachmentInput) (Attachment, error) {
	if attachmentID == uuid.Nil {
		return Attachment{}, invalid("attachment_id", "is required")
	}
	if err := validateAttachment(input); err != nil {
		return Attachment{}, err
	}
	return call[Attachment](ctx, c, "update attachment", http.MethodPut, "/rooms/attachments/"+attachmentID.String()+"/", input, nil)
}

// GeneratePresignedURL refreshes the upload descriptor and download URL
// of an attachment.
func (c *Client) GeneratePresignedURL(ctx context.Context, attachmentID uuid.UUID) (Attachment, error) {
	if attachmentID == uuid.Nil {
		return Attachment{}, invalid("attachment_id", "is required")
	}
	return call[Attachment](ctx, c, "generate presigned url", http.MethodGet, "/rooms/attachments/"+attachmentID.String()+"/generate-presigned-url/", nil, nil)
}

// DeleteAttachment deletes an attachment.
func (c *Client) DeleteAttachment(ctx context.Context, attachmentID uuid.UUID) error {
	if attachmentID == uuid.Nil {
		return invalid("attachment_id", "is required")
	}
	_, err := c.execute(ctx, http.MethodDelete, "/rooms/attachments/"+attachmentID.String()+"/", nil, nil, nil)
	return err
}

func validateAttachment(input AttachmentInput) error {
	if strings.TrimSpace(input.Filename) == "" {
		return invalid("filename", "is required")
	}
	if input.ParticipantID == uuid.Nil {
		return invalid("participant_id", "is required")
	}
	return nil
}
