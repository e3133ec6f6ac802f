package chatclient

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

// retryPolicy configures the backoff between connection attempts.
type retryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func defaultRetryPolicy(maxRetries int) retryPolicy {
	return retryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// retryTransport re-sends a request when the connection could not be
// established. Once any response arrives it is returned as-is, whatever
// its status.
type retryTransport struct {
	base   http.RoundTripper
	policy retryPolicy
	logger *slog.Logger
}

func newRetryTransport(base http.RoundTripper, policy retryPolicy, logger *slog.Logger) *retryTransport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryTransport{base: base, policy: policy, logger: logger}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	delay := t.policy.InitialDelay

	for attempt := 0; ; attempt++ {
		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(ctx)
			if req.Body != nil && req.Body != http.NoBody {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attemptReq.Body = body
			}
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err == nil {
			return resp, nil
		}
		if attempt >= t.policy.MaxRetries || !isConnectionError(err) || !replayable(req) {
			return nil, err
		}

		t.logger.WarnContext(ctx, "connection failed, retrying",
			"method", req.Method,
			"host", req.URL.Host,
			"attempt", attempt+1,
			"max_retries", t.policy.MaxRetries,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * t.policy.BackoffFactor)
		if delay > t.policy.MaxDelay {
			delay = t.policy.MaxDelay
		}
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// isConnectionError reports failures that happened before the request
// reached the server: dial errors, refused connections and DNS lookups.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
