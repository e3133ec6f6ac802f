package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInternalClient(t *testing.T, base string) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: base, OrganisationToken: "token"})
	require.NoError(t, err)
	return client
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     string
		endpoint string
		params   url.Values
		want     string
	}{
		{name: "plain join", base: "https://chat.example.com", endpoint: "rooms/", want: "https://chat.example.com/rooms/"},
		{name: "both slashes", base: "https://chat.example.com/api/", endpoint: "/rooms/", want: "https://chat.example.com/api/rooms/"},
		{name: "repeated slashes", base: "https://chat.example.com/api//", endpoint: "//rooms/search", want: "https://chat.example.com/api/rooms/search"},
		{name: "query", base: "https://chat.example.com", endpoint: "/rooms/", params: url.Values{"page": {"2"}}, want: "https://chat.example.com/rooms/?page=2"},
		{name: "empty query", base: "https://chat.example.com", endpoint: "/rooms/", params: url.Values{}, want: "https://chat.example.com/rooms/"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newInternalClient(t, tc.base)
			assert.Equal(t, tc.want, client.buildURL(tc.endpoint, tc.params))
		})
	}
}

func TestQueryHelpersOmitUnsetValues(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	params := url.Values{}
	setString(params, "name", "")
	setUUID(params, "participant_id", uuid.Nil)
	setInt(params, "last_n_messages", nil)
	setTrue(params, "fetch_only", false)
	req.Empty(params)

	zero := 0
	setInt(params, "last_n_messages", &zero)
	setTrue(params, "fetch_only", true)
	req.Equal("0", params.Get("last_n_messages"))
	req.Equal("true", params.Get("fetch_only"))
}

func TestListOptionsDefaults(t *testing.T) {
	t.Parallel()

	params := ListOptions{}.values()
	assert.Equal(t, "1", params.Get("page"))
	assert.Equal(t, "50", params.Get("size"))

	params = ListOptions{Page: 3, Size: 10, Filters: map[string]string{"name": "ops"}}.values()
	assert.Equal(t, "3", params.Get("page"))
	assert.Equal(t, "10", params.Get("size"))
	assert.Equal(t, "ops", params.Get("name"))
}

func TestErrorPayload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{"error": "X"}, errorPayload([]byte(`{"error": "X"}`)))
	assert.Equal(t, map[string]any{"detail": "oops"}, errorPayload([]byte("oops")))
	assert.Equal(t, map[string]any{"detail": ""}, errorPayload(nil))
	assert.Equal(t, map[string]any{"detail": []any{"a", "b"}}, errorPayload([]byte(`["a","b"]`)))
}

func TestDecodeRejectsUnexpectedShapes(t *testing.T) {
	t.Parallel()

	_, err := decode[Room]("get room", []byte(`[{"id": "x"}]`))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "get room", decodeErr.Operation)

	_, err = decode[Room]("get room", []byte("null"))
	require.ErrorAs(t, err, &decodeErr)

	room, err := decode[Room]("get room", []byte(`{"id":"6f1c1d7e-7f39-4ad0-9b8e-0e7f0c2f4b11","name":"ops","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "ops", room.Name)
}

func TestEncodeBodyMultipart(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	body := map[string]any{"room_id": "r-1", "count": 2}
	payload, contentType, err := encodeBody(body, []File{{Field: "upload", Name: "a.txt", Content: strings.NewReader("hello")}})
	req.NoError(err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	req.NoError(err)
	req.Equal("multipart/form-data", mediaType)

	reader := multipart.NewReader(strings.NewReader(string(payload)), params["boundary"])
	form, err := reader.ReadForm(1 << 20)
	req.NoError(err)
	req.Equal([]string{"r-1"}, form.Value["room_id"])
	req.Equal([]string{"2"}, form.Value["count"])
	req.Len(form.File["upload"], 1)

	file, err := form.File["upload"][0].Open()
	req.NoError(err)
	content, _ := io.ReadAll(file)
	req.Equal("hello", string(content))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func dialError() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func okResponse(r *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Header:     make(http.Header),
		Request:    r,
	}
}

func fastPolicy(maxRetries int) retryPolicy {
	return retryPolicy{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestRetryTransport(t *testing.T) {
	t.Parallel()

	t.Run("retries dial failures and replays the body", func(t *testing.T) {
		t.Parallel()
		var attempts atomic.Int32
		var bodies []string
		base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			data, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(data))
			if attempts.Add(1) < 3 {
				return nil, dialError()
			}
			return okResponse(r), nil
		})
		transport := newRetryTransport(base, fastPolicy(3), slog.New(slog.NewTextHandler(io.Discard, nil)))

		req, err := http.NewRequest(http.MethodPost, "http://chat.invalid/rooms/", strings.NewReader(`{"name":"a"}`))
		require.NoError(t, err)
		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, int32(3), attempts.Load())
		assert.Equal(t, []string{`{"name":"a"}`, `{"name":"a"}`, `{"name":"a"}`}, bodies)
	})

	t.Run("stops after max retries", func(t *testing.T) {
		t.Parallel()
		var attempts atomic.Int32
		base := roundTripFunc(func(*http.Request) (*http.Response, error) {
			attempts.Add(1)
			return nil, dialError()
		})
		transport := newRetryTransport(base, fastPolicy(2), slog.New(slog.NewTextHandler(io.Discard, nil)))

		req, _ := http.NewRequest(http.MethodGet, "http://chat.invalid/rooms/", nil)
		_, err := transport.RoundTrip(req)
		require.Error(t, err)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		t.Parallel()
		var attempts atomic.Int32
		base := roundTripFunc(func(*http.Request) (*http.Response, error) {
			attempts.Add(1)
			return nil, errors.New("tls: handshake failure")
		})
		transport := newRetryTransport(base, fastPolicy(3), nil)

		req, _ := http.NewRequest(http.MethodGet, "http://chat.invalid/rooms/", nil)
		_, err := transport.RoundTrip(req)
		require.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("does not retry error statuses", func(t *testing.T) {
		t.Parallel()
		var attempts atomic.Int32
		base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts.Add(1)
			resp := okResponse(r)
			resp.StatusCode = http.StatusServiceUnavailable
			return resp, nil
		})
		transport := newRetryTransport(base, fastPolicy(3), nil)

		req, _ := http.NewRequest(http.MethodGet, "http://chat.invalid/rooms/", nil)
		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		base := roundTripFunc(func(*http.Request) (*http.Response, error) {
			cancel()
			return nil, dialError()
		})
		policy := fastPolicy(5)
		policy.InitialDelay = time.Hour
		transport := newRetryTransport(base, policy, slog.New(slog.NewTextHandler(io.Discard, nil)))

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://chat.invalid/rooms/", nil)
		_, err := transport.RoundTrip(req)
		require.Error(t, err)
	})
}

func TestConfigNormalize(t *testing.T) {
	t.Parallel()

	cfg, err := Config{BaseURL: " https://chat.example.com/ ", OrganisationToken: "tok"}.normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.NotNil(t, cfg.Logger)

	_, err = Config{BaseURL: "ftp://chat.example.com", OrganisationToken: ""}.normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http or https")
	assert.Contains(t, err.Error(), "organisation token is required")

	_, err = Config{BaseURL: "https://chat.example.com", OrganisationToken: "tok", MaxRetries: -2, Timeout: -time.Second}.normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Contains(t, err.Error(), "timeout")

	cfg, err = Config{BaseURL: "https://chat.example.com", OrganisationToken: "tok", MaxRetries: NoRetries}.normalize()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestPresignedUploadUnmarshal(t *testing.T) {
	t.Parallel()

	var nested PresignedUpload
	require.NoError(t, jsonUnmarshal(`{"url":"https://s3.example.com/bucket","fields":{"key":"a/b.png","policy":"p"}}`, &nested))
	assert.Equal(t, "https://s3.example.com/bucket", nested.URL)
	assert.Equal(t, map[string]string{"key": "a/b.png", "policy": "p"}, nested.Fields)

	var flat PresignedUpload
	require.NoError(t, jsonUnmarshal(`{"url":"https://s3.example.com/bucket","key":"a/b.png","acl":"public-read","expires":60}`, &flat))
	assert.Equal(t, "https://s3.example.com/bucket", flat.URL)
	assert.Equal(t, map[string]string{"key": "a/b.png", "acl": "public-read", "expires": "60"}, flat.Fields)
}

func jsonUnmarshal(data string, out any) error {
	return json.Unmarshal([]byte(data), out)
}
