package reducer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/spcode"
	"github.com/dtnitsch/pixbatch/pkg/transport"
)

// uploadWait is the service-side wait sent with uploads when the options
// don't set one.
const uploadWait = 30

// Keys the caller's options may not override.
var reservedKeys = map[string]bool{
	"key":            true,
	"plugin_version": true,
	"urllist":        true,
	"file_paths":     true,
	models.OptWait:   true,
}

// prepare validates the inputs and builds the item list. Nothing is sent
// when it fails.
func (b *Batch) prepare() error {
	n := len(b.inputs)
	if n == 0 {
		code := -105
		if b.Mode == ModeUpload {
			code = -109
		}
		return apierr.New(apierr.KindInvalidRequest, "at least one item is required", apierr.WithCode(code))
	}
	if n > MaxItems {
		return apierr.New(apierr.KindInvalidRequest,
			fmt.Sprintf("too many items: %d (max %d per call)", n, MaxItems),
			apierr.WithCode(-107), apierr.WithPayload(n))
	}

	items := make([]*Item, n)
	for i, in := range b.inputs {
		it := &Item{Index: i, Input: in}
		switch b.Mode {
		case ModeURL:
			norm, err := normalizeURL(in.URL)
			if err != nil {
				return apierr.New(apierr.KindInvalidRequest, fmt.Sprintf("invalid URL at index %d", i),
					apierr.WithCode(-102), apierr.WithIndex(i), apierr.WithPayload(in.URL), apierr.WithCause(err))
			}
			it.normalized = norm
		case ModeUpload:
			data, err := b.readInput(i, in)
			if err != nil {
				return err
			}
			it.data = data
		}
		items[i] = it
	}
	b.items = items
	return nil
}

func (b *Batch) readInput(i int, in Input) ([]byte, error) {
	if in.Data != nil {
		return in.Data, nil
	}
	p := strings.TrimSpace(in.Path)
	if p == "" {
		return nil, apierr.New(apierr.KindInvalidRequest, fmt.Sprintf("item %d needs either data or a path", i+1),
			apierr.WithCode(-109), apierr.WithIndex(i))
	}
	data, err := b.client.files.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apierr.New(apierr.KindInvalidRequest, fmt.Sprintf("local file %q does not exist", p),
			apierr.WithCode(-115), apierr.WithIndex(i), apierr.WithPayload(p), apierr.WithCause(err))
	}
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, fmt.Sprintf("cannot read local file %q", p),
			apierr.WithCode(-110), apierr.WithIndex(i), apierr.WithPayload(p), apierr.WithCause(err))
	}
	return data, nil
}

// normalizeURL trims u and requires an absolute http(s) URL with a host.
// The result is re-encoded.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	u.Scheme = scheme
	return u.String(), nil
}

// waitFor returns the wait option, or def when unset.
func waitFor(opts models.Options, def int) int {
	if w, ok, err := opts.Int(models.OptWait); ok && err == nil {
		return w
	}
	return def
}

// jsonPayload builds a reducer request body for urllist.
func (b *Batch) jsonPayload(opts models.Options, urllist []string, wait int) ([]byte, error) {
	cfg := b.client.cfg
	payload := make(map[string]any, len(opts)+4)
	for k, v := range opts {
		if reservedKeys[k] || v == nil {
			continue
		}
		payload[k] = v
	}
	payload["key"] = cfg.APIKey
	payload["plugin_version"] = cfg.PluginVersion
	payload["wait"] = wait
	payload["urllist"] = urllist

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "cannot encode options", apierr.WithCause(err))
	}
	return data, nil
}

func jsonRequest(endpoint string, body []byte) *transport.Request {
	return &transport.Request{
		URL:    endpoint,
		Method: http.MethodPost,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"application/json"},
		},
		Body: body,
	}
}

// submit sends the one bulk call for the batch and applies the response.
func (b *Batch) submit(ctx context.Context, opts models.Options) error {
	var req *transport.Request
	switch b.Mode {
	case ModeUpload:
		body, contentType, err := b.multipartBody(opts)
		if err != nil {
			return err
		}
		req = &transport.Request{
			URL:    b.client.cfg.PostReducerURL,
			Method: http.MethodPost,
			Header: http.Header{
				"Content-Type": []string{contentType},
				"Accept":       []string{"application/json"},
			},
			Body: body,
		}
	default:
		urllist := make([]string, len(b.items))
		for i, it := range b.items {
			urllist[i] = it.normalized
		}
		body, err := b.jsonPayload(opts, urllist, waitFor(opts, b.client.cfg.Wait))
		if err != nil {
			return err
		}
		req = jsonRequest(b.client.cfg.ReducerURL, body)
	}

	raw, err := b.client.rt.Do(ctx, req)
	if err != nil {
		return err
	}
	metas, err := decodeMetas(raw)
	if err != nil {
		return err
	}
	if err := b.apply(metas); err != nil {
		return err
	}

	b.logger.Info("batch submitted", "items", len(b.items), "pending", len(b.pending()))
	return nil
}

// apply maps the submission response onto the items, position by position.
func (b *Batch) apply(metas []models.ResponseMeta) error {
	if len(metas) != len(b.items) {
		return apierr.New(apierr.KindProtocol,
			fmt.Sprintf("response has %d items, sent %d", len(metas), len(b.items)),
			apierr.WithPayload(map[string]any{"sent": len(b.items), "got": len(metas)}))
	}
	for i := range metas {
		meta := metas[i]
		if spcode.Classify(meta.Code()).Status == spcode.Pending && strings.TrimSpace(meta.OriginalURL) == "" {
			return apierr.New(apierr.KindProtocol,
				fmt.Sprintf("pending item %d returned without OriginalURL", i),
				apierr.WithCode(meta.Code()), apierr.WithIndex(i), apierr.WithPayload(&meta))
		}
	}

	for i := range metas {
		meta := &metas[i]
		it := b.items[i]
		b.track(it, strings.TrimSpace(meta.OriginalURL))

		c := spcode.Classify(meta.Code())
		switch {
		case c.Status == spcode.Pending:
			it.observe(meta)
		case c.Status.IsError():
			it.Outcome.Meta = meta
			it.fail(apierr.FromStatus(meta.Code(), meta.Message(), meta))
			b.logger.Warn("item failed", "index", i, "code", meta.Code(), "error", it.Outcome.Err)
		default:
			it.resolve(meta)
		}
	}
	return nil
}

// decodeMetas parses a service response. A top-level object carries a
// request-level status and is returned as an error.
func decodeMetas(raw []byte) ([]models.ResponseMeta, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var meta models.ResponseMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, apierr.New(apierr.KindProtocol, "unexpected response object",
				apierr.WithPayload(string(raw)), apierr.WithCause(err))
		}
		if spcode.Classify(meta.Code()).Status.IsError() {
			return nil, apierr.FromStatus(meta.Code(), meta.Message(), &meta)
		}
		return nil, apierr.New(apierr.KindProtocol, "expected an array of results, got an object",
			apierr.WithCode(meta.Code()), apierr.WithPayload(&meta))
	}

	var metas []models.ResponseMeta
	if err := json.Unmarshal(raw, &metas); err != nil {
		return nil, apierr.New(apierr.KindProtocol, "unexpected response shape",
			apierr.WithPayload(string(raw)), apierr.WithCause(err))
	}
	return metas, nil
}
