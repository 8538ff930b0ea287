package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/teranos/dataq/errors"
)

// Doer sends HTTP requests; *SaferClient and *http.Client satisfy it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryPolicy bounds attempts on transient failures
type RetryPolicy struct {
	Attempts int
	Backoff  func(attempt int) time.Duration
}

// DefaultRetry is one retry after a short pause
var DefaultRetry = RetryPolicy{
	Attempts: 2,
	Backoff: func(attempt int) time.Duration {
		return time.Duration(attempt) * 500 * time.Millisecond
	},
}

// maxErrorBody caps the response body kept on StatusError
const maxErrorBody = 512

// StatusError is a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying
func (e *StatusError) Transient() bool {
	return IsTransientStatus(e.StatusCode)
}

// IsTransientStatus reports 429 and the retryable 5xx codes
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// PostJSON sends body as JSON to url and decodes a 2xx response into out.
// Network errors and transient statuses are retried per policy. The final
// error is marked errors.ErrLLMTimeout when the deadline ran out and
// errors.ErrLLMUnavailable otherwise.
func PostJSON(ctx context.Context, client Doer, url string, headers map[string]string, body, out any, policy RetryPolicy) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, policy.backoff(attempt)); err != nil {
				return classify(ctx, errors.Wrap(lastErr, "retry aborted"))
			}
		}

		retry, err := post(ctx, client, url, headers, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return classify(ctx, lastErr)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// post performs one attempt and reports whether a failure may be retried
func post(ctx context.Context, client Doer, url string, headers map[string]string, payload []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return true, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := string(data)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		serr := &StatusError{StatusCode: resp.StatusCode, Body: body}
		return serr.Transient(), serr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrap(err, "failed to decode response")
	}
	return false, nil
}

func classify(ctx context.Context, err error) error {
	if IsTimeout(ctx, err) {
		return errors.Mark(err, errors.ErrLLMTimeout)
	}
	return errors.Mark(err, errors.ErrLLMUnavailable)
}

// IsTimeout reports whether err stems from a deadline rather than a failure
func IsTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
