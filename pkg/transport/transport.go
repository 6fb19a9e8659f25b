// Package transport sends requests to the optimization service: an HTTPS-only
// HTTP primitive with proxy support, and a retrying wrapper around it.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// Request is one outbound call.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
	// Timeout bounds the call. Zero means the sender's default.
	Timeout time.Duration
}

// Response is the fully read reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Sender is the single primitive the engine depends on.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

func (f SenderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// EnsureHTTPS returns raw if it is an https URL. With upgrade set, http URLs
// are rewritten to https; anything else is rejected before dispatch.
func EnsureHTTPS(raw string, upgrade bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", apierr.New(apierr.KindInvalidRequest,
			fmt.Sprintf("request URL %q is not a valid absolute URL", raw),
			apierr.WithCode(-102), apierr.WithPayload(raw), apierr.WithCause(err))
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return u.String(), nil
	case "http":
		if upgrade {
			u.Scheme = "https"
			return u.String(), nil
		}
	}
	return "", apierr.New(apierr.KindInvalidRequest,
		fmt.Sprintf("refusing to send request to %q: only https is allowed", raw),
		apierr.WithCode(-102), apierr.WithPayload(raw))
}
