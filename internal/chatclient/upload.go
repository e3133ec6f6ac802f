package chatclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// UploadToPresigned sends content straight to object storage using the
// descriptor returned by CreateAttachments or GeneratePresignedURL. The
// bearer token is not sent; the presigned fields carry the authorization.
func (c *Client) UploadToPresigned(ctx context.Context, upload PresignedUpload, filename string, content io.Reader) error {
	if strings.TrimSpace(upload.URL) == "" {
		return invalid("presigned_data.url", "is required")
	}
	if content == nil {
		return invalid("content", "is required")
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("chatclient: reading upload content: %w", err)
	}

	contentType := presignedContentType(upload.Fields)
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	fields := make(map[string]string, len(upload.Fields))
	for key, value := range upload.Fields {
		fields[key] = value
	}
	body, formType, err := encodeMultipart(fields, []File{{
		Field:       "file",
		Name:        filename,
		ContentType: contentType,
		Content:     bytes.NewReader(data),
	}})
	if err != nil {
		return fmt.Errorf("chatclient: encoding upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upload.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatclient: creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", formType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteServiceError{
			Method:  http.MethodPost,
			URL:     upload.URL,
			Payload: map[string]any{"detail": err.Error()},
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteServiceError{
			Method:     http.MethodPost,
			URL:        upload.URL,
			StatusCode: resp.StatusCode,
			Payload:    errorPayload(raw),
		}
	}

	c.logger.DebugContext(ctx, "presigned upload completed",
		"filename", filename,
		"content_type", contentType,
		"bytes", len(data),
	)
	return nil
}

func presignedContentType(fields map[string]string) string {
	for key, value := range fields {
		switch strings.ToLower(key) {
		case "content-type", "content_type":
			return value
		}
	}
	return ""
}
