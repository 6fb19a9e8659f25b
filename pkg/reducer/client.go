// Package reducer submits batches of images to the optimization service,
// polls the items that are still processing and aggregates the outcomes.
package reducer

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/transport"
)

// MaxItems is the service's per-call item cap.
const MaxItems = 100

// FileReader reads local source files for upload batches.
// fstest.MapFS and os.DirFS-backed readers both satisfy it.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

type osFileReader struct{}

func (osFileReader) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// Client runs batches against the service. It holds only immutable
// configuration and a shared transport, so many batches may run on one
// Client concurrently.
type Client struct {
	cfg    models.Config
	sender transport.Sender
	rt     *transport.Retrying
	files  FileReader
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithSender replaces the HTTP primitive.
func WithSender(s transport.Sender) Option {
	return func(c *Client) { c.sender = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFileReader replaces the local file reader used for path inputs.
func WithFileReader(r FileReader) Option {
	return func(c *Client) { c.files = r }
}

// New validates cfg and returns a Client. No network call is made.
func New(cfg models.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		files:  osFileReader{},
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sender == nil {
		hs := transport.NewHTTPSender(cfg.Proxy)
		hs.Timeout = cfg.Timeout
		c.sender = hs
	}

	c.rt = transport.NewRetrying(c.sender, cfg.Retries, cfg.RetryDelay, cfg.Timeout)
	c.rt.Logger = c.logger
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() models.Config { return c.cfg }

// Sender returns the underlying primitive, for collaborators such as the
// artifact fetcher that share the proxy and TLS setup.
func (c *Client) Sender() transport.Sender { return c.sender }

// NewURLBatch prepares a batch of remote image URLs without sending it.
func (c *Client) NewURLBatch(urls []string, opts models.Options) *Batch {
	inputs := make([]Input, len(urls))
	for i, u := range urls {
		inputs[i] = Input{URL: u}
	}
	return c.newBatch(ModeURL, inputs, opts)
}

// NewUploadBatch prepares a batch of local files or in-memory buffers.
func (c *Client) NewUploadBatch(inputs []Input, opts models.Options) *Batch {
	return c.newBatch(ModeUpload, append([]Input(nil), inputs...), opts)
}

// SubmitURLs optimizes remote images. The returned Batch is never nil, so
// item-level detail is available through Items even when err is set.
func (c *Client) SubmitURLs(ctx context.Context, urls []string, opts models.Options) (*Batch, error) {
	b := c.NewURLBatch(urls, opts)
	_, err := b.Run(ctx)
	return b, err
}

// SubmitFiles uploads local files by path.
func (c *Client) SubmitFiles(ctx context.Context, paths []string, opts models.Options) (*Batch, error) {
	inputs := make([]Input, len(paths))
	for i, p := range paths {
		inputs[i] = Input{Path: p}
	}
	b := c.NewUploadBatch(inputs, opts)
	_, err := b.Run(ctx)
	return b, err
}

// SubmitBuffers uploads in-memory images. Name is used as the display name.
func (c *Client) SubmitBuffers(ctx context.Context, inputs []Input, opts models.Options) (*Batch, error) {
	b := c.NewUploadBatch(inputs, opts)
	_, err := b.Run(ctx)
	return b, err
}

// effectiveOptions applies the configured default conversion when the
// caller did not ask for one.
func (c *Client) effectiveOptions(opts models.Options) models.Options {
	out := models.Options{}.Merge(opts)
	if v, ok := out[models.OptConvertTo]; (!ok || v == nil) && c.cfg.ConvertTo != "" {
		out[models.OptConvertTo] = c.cfg.ConvertTo
	}
	return out
}
