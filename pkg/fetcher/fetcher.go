// Package fetcher downloads optimized artifacts from the service's CDN.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/transport"
)

type Fetcher struct {
	sender  transport.Sender
	timeout time.Duration
}

// NewFetcher returns a Fetcher that downloads through sender.
// A zero timeout uses the sender's default.
func NewFetcher(sender transport.Sender, timeout time.Duration) *Fetcher {
	return &Fetcher{sender: sender, timeout: timeout}
}

// Fetch downloads rawURL. Plain http URLs are upgraded to https.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := transport.EnsureHTTPS(rawURL, true)
	if err != nil {
		return nil, err
	}

	resp, err := f.sender.Send(ctx, &transport.Request{
		URL:     target,
		Method:  http.MethodGet,
		Timeout: f.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", target, err)
	}

	if !resp.OK() {
		return nil, apierr.New(apierr.KindUnknown, "failed to download optimized file",
			apierr.WithHTTPStatus(resp.Status), apierr.WithPayload(target))
	}
	return resp.Body, nil
}
