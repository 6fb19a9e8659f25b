package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// scripted returns the queued responses in order, one per call.
type scripted struct {
	steps []step
	calls int
	reqs  []*Request
}

type step struct {
	resp *Response
	err  error
}

func (s *scripted) Send(_ context.Context, req *Request) (*Response, error) {
	s.reqs = append(s.reqs, req)
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i].resp, s.steps[i].err
}

func newTestRetrying(s Sender, retries int) (*Retrying, *[]time.Duration) {
	var delays []time.Duration
	r := NewRetrying(s, retries, 10*time.Millisecond, time.Second)
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestRetrying_RecoversAfter503(t *testing.T) {
	s := &scripted{steps: []step{
		{resp: &Response{Status: 503, Body: []byte("busy")}},
		{resp: &Response{Status: 503, Body: []byte("busy")}},
		{resp: &Response{Status: 200, Body: []byte(`[{"Status":{"Code":2}}]`)}},
	}}
	r, delays := newTestRetrying(s, 2)

	body, err := r.Do(context.Background(), &Request{URL: "https://api.example.com", Method: "POST"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(body) != `[{"Status":{"Code":2}}]` {
		t.Errorf("body = %s", body)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestRetrying_AllAttemptsFail(t *testing.T) {
	s := &scripted{steps: []step{
		{resp: &Response{Status: 503, Body: []byte("first")}},
		{resp: &Response{Status: 502, Body: []byte("second")}},
		{resp: &Response{Status: 503, Body: []byte("last")}},
	}}
	r, delays := newTestRetrying(s, 2)

	_, err := r.Do(context.Background(), &Request{URL: "https://api.example.com"})
	if !errors.Is(err, apierr.ErrTemporary) {
		t.Fatalf("error = %v, want temporary", err)
	}
	var e *apierr.Error
	if !errors.As(err, &e) {
		t.Fatalf("error is %T", err)
	}
	if e.Payload != "last" || e.HTTPStatus != 503 {
		t.Errorf("want last error surfaced, got status=%d payload=%v", e.HTTPStatus, e.Payload)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
	if len(*delays) != 2 {
		t.Errorf("no sleep expected after the final attempt, got %d sleeps", len(*delays))
	}
}

func TestRetrying_NoRetry(t *testing.T) {
	tests := []struct {
		name string
		step step
		want error
	}{
		{
			name: "client error",
			step: step{resp: &Response{Status: 400, Body: []byte("bad")}},
			want: apierr.ErrUnknown,
		},
		{
			name: "non-json body",
			step: step{resp: &Response{Status: 200, Body: []byte("<html>")}},
			want: apierr.ErrUnknown,
		},
		{
			name: "invalid request from sender",
			step: step{err: apierr.New(apierr.KindInvalidRequest, "not https", apierr.WithCode(-102))},
			want: apierr.ErrInvalidRequest,
		},
		{
			name: "wrapped invalid request from sender",
			step: step{err: fmt.Errorf("custom sender: %w", apierr.New(apierr.KindInvalidRequest, "bad proxy", apierr.WithCode(-104)))},
			want: apierr.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{steps: []step{tt.step}}
			r, _ := newTestRetrying(s, 2)

			_, err := r.Do(context.Background(), &Request{URL: "https://api.example.com"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if apierr.IsRetryable(err) {
				t.Error("error should not be retryable")
			}
			if s.calls != 1 {
				t.Errorf("calls = %d, want 1", s.calls)
			}
		})
	}
}

func TestRetrying_RetriesNetworkErrorsAnd429(t *testing.T) {
	s := &scripted{steps: []step{
		{err: errors.New("connection reset")},
		{resp: &Response{Status: 429}},
		{resp: &Response{Status: 200, Body: []byte(`{}`)}},
	}}
	r, _ := newTestRetrying(s, 2)

	if _, err := r.Do(context.Background(), &Request{URL: "https://api.example.com"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestRetrying_AppliesDefaultTimeout(t *testing.T) {
	s := &scripted{steps: []step{{resp: &Response{Status: 200, Body: []byte(`[]`)}}}}
	r, _ := newTestRetrying(s, 0)

	if _, err := r.Do(context.Background(), &Request{URL: "https://api.example.com"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if s.reqs[0].Timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", s.reqs[0].Timeout)
	}
}

func TestRetrying_ContextCanceled(t *testing.T) {
	s := &scripted{steps: []step{{resp: &Response{Status: 503}}}}
	r := NewRetrying(s, 3, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Do(ctx, &Request{URL: "https://api.example.com"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
