package reducer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/transport"
)

// fakeService answers calls with the queued bodies, in order. Once the
// queue is drained the last body is repeated.
type fakeService struct {
	t         *testing.T
	responses []string
	requests  []*transport.Request
}

func (f *fakeService) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		f.t.Fatalf("unexpected call to %s", req.URL)
	}
	i := len(f.requests) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &transport.Response{Status: 200, Body: []byte(f.responses[i])}, nil
}

func (f *fakeService) calls() int { return len(f.requests) }

// payload decodes the JSON body of call n.
func (f *fakeService) payload(n int) map[string]any {
	f.t.Helper()
	var p map[string]any
	if err := json.Unmarshal(f.requests[n].Body, &p); err != nil {
		f.t.Fatalf("call %d body is not JSON: %v", n, err)
	}
	return p
}

// urllist returns the urllist sent with call n.
func (f *fakeService) urllist(n int) []string {
	f.t.Helper()
	raw, _ := f.payload(n)["urllist"].([]any)
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i], _ = v.(string)
	}
	return out
}

func testConfig() models.Config {
	cfg := models.Default()
	cfg.APIKey = "test-key"
	cfg.RetryDelay = time.Millisecond
	cfg.Poll.Interval = 0
	return cfg
}

func newTestClient(t *testing.T, cfg models.Config, responses ...string) (*Client, *fakeService) {
	t.Helper()
	svc := &fakeService{t: t, responses: responses}
	c, err := New(cfg, WithSender(svc))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, svc
}

// meta renders one response item.
func meta(code int, original string) string {
	return fmt.Sprintf(`{"Status":{"Code":"%d","Message":"status %d"},"OriginalURL":%q,"LossyURL":"%s.lossy"}`,
		code, code, original, original)
}

func metas(items ...string) string {
	return "[" + strings.Join(items, ",") + "]"
}

func imageURLs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://img.example.com/photo-%d.jpg", i)
	}
	return out
}

func token(i int) string {
	return fmt.Sprintf("https://api.example.com/orig/%d.jpg", i)
}
