package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scribe/internal/services"
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, snippet(e.Body))
}

// Unwrap classifies the status: auth failures are configuration errors,
// throttling and server faults are transient, other client errors are
// validation errors.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden,
		e.StatusCode == http.StatusPaymentRequired:
		return services.ErrConfiguration
	case e.retryable():
		return services.ErrTransient
	default:
		return services.ErrValidation
	}
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// EmptyContentError is a successful response without usable content.
type EmptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.FinishReason, e.Refusal, e.Snippet)
}

func (e *EmptyContentError) Unwrap() error { return services.ErrTransient }

const (
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
	sleeper  func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: defaultRetryAttempts, base: defaultRetryBaseDelay, max: defaultRetryMaxDelay}
}

func (c *Client) completeWithRetry(ctx context.Context, payload chatRequest, op string) (string, error) {
	attempts := max(c.retry.attempts, 1)
	var (
		lastErr error
		tried   int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		tried = attempt
		resp, body, err := c.send(ctx, payload)
		if err == nil {
			text, finish, refusal := resp.content()
			if text != "" {
				return text, nil
			}
			err = &EmptyContentError{FinishReason: finish, Refusal: refusal, Snippet: snippet(string(body))}
		}
		lastErr = err

		delay, retry := c.retry.delayFor(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if sleepErr := c.retry.sleep(ctx, delay); sleepErr != nil {
			return "", sleepErr
		}
	}
	if tried > 1 {
		return "", fmt.Errorf("%s: failed after %d attempts: %w", op, tried, lastErr)
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

func (p retryPolicy) delayFor(ctx context.Context, err error, attempt, attempts int) (time.Duration, bool) {
	if attempt >= attempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var empty *EmptyContentError
	if errors.As(err, &empty) {
		return p.backoff(attempt), true
	}
	var status *StatusError
	if errors.As(err, &status) {
		if !status.retryable() {
			return 0, false
		}
		if status.RetryAfter > 0 {
			return p.cap(status.RetryAfter), true
		}
		return p.backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles from the base delay per attempt: base, 2*base, 4*base...
func (p retryPolicy) backoff(attempt int) time.Duration {
	if p.base <= 0 {
		return 0
	}
	delay := p.base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.max > 0 && delay >= p.max {
			return p.max
		}
	}
	return p.cap(delay)
}

func (p retryPolicy) cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.max > 0 && delay > p.max {
		return p.max
	}
	return delay
}

func (p retryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
