package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Client is a typed client for the remote chat service. It is safe for
// concurrent use; the only shared state is the pooled HTTP transport.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates cfg and builds a client owning one transport session.
func NewClient(cfg Config) (*Client, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	var base http.RoundTripper
	session := &http.Client{}
	if normalized.HTTPClient != nil {
		*session = *normalized.HTTPClient
		base = normalized.HTTPClient.Transport
	}
	session.Transport = newRetryTransport(base, defaultRetryPolicy(normalized.MaxRetries), normalized.Logger)
	session.Timeout = normalized.Timeout

	return &Client{
		baseURL:    strings.TrimRight(normalized.BaseURL, "/"),
		token:      normalized.OrganisationToken,
		httpClient: session,
		logger:     normalized.Logger,
	}, nil
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// buildURL joins the base URL and endpoint with exactly one slash and
// appends the encoded query when params is non-empty.
func (c *Client) buildURL(endpoint string, params url.Values) string {
	target := strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

// File is a file part of a multipart request.
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// execute performs one request and returns the raw JSON body. Every
// failure is reported as a *RemoteServiceError, except for local encoding
// problems which never reach the network.
func (c *Client) execute(ctx context.Context, method, endpoint string, body any, params url.Values, files []File) (json.RawMessage, error) {
	target := c.buildURL(endpoint, params)

	payload, contentType, err := encodeBody(body, files)
	if err != nil {
		return nil, fmt.Errorf("chatclient: encoding %s %s: %w", method, endpoint, err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("chatclient: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "remote call failed", "method", method, "path", endpoint, "duration", time.Since(start), "error", err)
		return nil, &RemoteServiceError{
			Method:  method,
			URL:     target,
			Payload: map[string]any{"detail": err.Error()},
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteServiceError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Payload:    map[string]any{"detail": fmt.Sprintf("reading response body: %v", err)},
			Err:        err,
		}
	}

	c.logger.DebugContext(ctx, "remote call completed",
		"method", method,
		"path", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteServiceError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Payload:    errorPayload(raw),
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, &DecodeError{
			Operation: method + " " + endpoint,
			Err:       fmt.Errorf("response body is not valid JSON: %s", truncate(string(raw), 200)),
		}
	}
	return json.RawMessage(raw), nil
}

// errorPayload keeps a JSON object body verbatim and wraps anything else
// under "detail".
func errorPayload(raw []byte) map[string]any {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{"detail": string(raw)}
	}
	if object, ok := decoded.(map[string]any); ok {
		return object
	}
	return map[string]any{"detail": decoded}
}

func encodeBody(body any, files []File) ([]byte, string, error) {
	if len(files) == 0 {
		if body == nil {
			return nil, "application/json", nil
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, "", err
		}
		return encoded, "application/json", nil
	}

	fields, err := formFields(body)
	if err != nil {
		return nil, "", err
	}
	return encodeMultipart(fields, files)
}

// formFields flattens a JSON-encodable body into multipart form values.
// Non-string values are sent as their JSON encoding.
func formFields(body any) (map[string]string, error) {
	if body == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &object); err != nil {
		return nil, errors.New("multipart body must encode to a JSON object")
	}
	fields := make(map[string]string, len(object))
	for key, value := range object {
		var text string
		if err := json.Unmarshal(value, &text); err == nil {
			fields[key] = text
			continue
		}
		fields[key] = string(value)
	}
	return fields, nil
}

func encodeMultipart(fields map[string]string, files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", err
		}
	}

	for _, file := range files {
		if file.Content == nil {
			return nil, "", fmt.Errorf("file %q has no content", file.Name)
		}
		field := file.Field
		if field == "" {
			field = "file"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// decode shapes a raw response into T, rejecting empty, null and
// mismatched bodies.
func decode[T any](operation string, raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, &DecodeError{Operation: operation, Err: errors.New("empty response body")}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &DecodeError{Operation: operation, Err: err}
	}
	return out, nil
}

func call[T any](ctx context.Context, c *Client, operation, method, endpoint string, body any, params url.Values) (T, error) {
	raw, err := c.execute(ctx, method, endpoint, body, params, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](operation, raw)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
