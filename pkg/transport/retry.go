package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// Retrying wraps a Sender with bounded retry and exponential backoff for
// transient failures: network errors, timeouts, HTTP 429 and 5xx.
type Retrying struct {
	Sender Sender
	// Retries is the number of attempts after the first.
	Retries int
	// RetryDelay is the base backoff; attempt n waits RetryDelay * 2^n.
	RetryDelay time.Duration
	// Timeout is applied to requests that don't set their own.
	Timeout time.Duration
	Logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying returns a Retrying with a discard logger.
func NewRetrying(s Sender, retries int, retryDelay, timeout time.Duration) *Retrying {
	return &Retrying{
		Sender:     s,
		Retries:    retries,
		RetryDelay: retryDelay,
		Timeout:    timeout,
		Logger:     slog.New(slog.DiscardHandler),
	}
}

// Do sends req and returns the JSON response body. The last observed error
// is returned unchanged once the retry budget is spent.
func (r *Retrying) Do(ctx context.Context, req *Request) ([]byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lastErr error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		body, err := r.once(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !apierr.IsRetryable(err) || attempt == r.Retries {
			break
		}

		delay := r.RetryDelay * time.Duration(1<<uint(attempt))
		logger.Debug("retrying request", "url", req.URL, "attempt", attempt+1, "delay", delay, "error", err)
		if err := r.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Retrying) once(ctx context.Context, req *Request) ([]byte, error) {
	call := *req
	if call.Timeout <= 0 {
		call.Timeout = r.Timeout
	}

	resp, err := r.Sender.Send(ctx, &call)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, apierr.New(apierr.KindTemporary, "network error while calling service", apierr.WithCause(err))
	}

	if !resp.OK() {
		if resp.Status == http.StatusTooManyRequests || resp.Status >= 500 {
			return nil, apierr.New(apierr.KindTemporary, fmt.Sprintf("HTTP %d from service", resp.Status),
				apierr.WithHTTPStatus(resp.Status), apierr.WithPayload(string(resp.Body)))
		}
		return nil, apierr.New(apierr.KindUnknown, fmt.Sprintf("HTTP error from service: %d", resp.Status),
			apierr.WithHTTPStatus(resp.Status), apierr.WithPayload(string(resp.Body)))
	}

	if !json.Valid(resp.Body) {
		return nil, apierr.New(apierr.KindUnknown, "service returned a non-JSON response",
			apierr.WithHTTPStatus(resp.Status), apierr.WithPayload(string(resp.Body)))
	}
	return resp.Body, nil
}

func (r *Retrying) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
