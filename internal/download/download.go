// Package download saves the optimized artifacts of a finished batch.
package download

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dtnitsch/pixbatch/internal/common"
	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/output"
	"github.com/dtnitsch/pixbatch/pkg/reducer"
)

// ResultSource yields the result to download. *reducer.Batch is one.
type ResultSource interface {
	LastResult() (*reducer.Result, error)
}

// Fetcher downloads one artifact.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Sink stores artifacts under a key.
type Sink interface {
	SaveFile(ctx context.Context, key string, data []byte, contentType string) error
	ReadFile(ctx context.Context, key string) ([]byte, error)
	HasFile(ctx context.Context, key string) (bool, error)
	Path(key string) string
}

// Options tune a download run.
type Options struct {
	// Force re-downloads artifacts already present in the sink.
	Force  bool
	Logger *slog.Logger
}

// Saved is one artifact written to the sink.
type Saved struct {
	Index  int    `json:"index" yaml:"index"`
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size_bytes" yaml:"size_bytes"`
	SHA256 string `json:"sha256" yaml:"sha256"`
	// Cached is set when the artifact was already in the sink.
	Cached bool `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// Run downloads the best variant of every ready item of src's result and
// saves it under <batch id>/<file name>. Artifacts already in the sink are
// reused unless opts.Force is set. It stops at the first item that cannot
// be downloaded and returns what was saved so far.
func Run(ctx context.Context, src ResultSource, f Fetcher, sink Sink, opts Options) ([]Saved, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	res, err := src.LastResult()
	if err != nil {
		return nil, err
	}

	convertto := res.Options.String(models.OptConvertTo)
	metas := res.Metas()
	used := make(map[string]bool, len(res.Items))
	var saved []Saved
	for i, it := range res.Items {
		meta := metas[i]
		if it.Outcome.State != reducer.Ready {
			logger.Debug("skipping item", "index", it.Index, "state", it.Outcome.State.String())
			continue
		}

		best := output.PickBestURL(meta, res.Options)
		if best == "" {
			var payload any
			if meta != nil {
				payload = meta.Raw
			}
			return saved, apierr.New(apierr.KindUnknown, "no downloadable URL returned for item",
				apierr.WithIndex(it.Index), apierr.WithPayload(payload))
		}

		source := output.SourceName(it.Input.BaseName(it.Index), meta)
		name := output.UniqueName(output.FileName(it.Index, source, best, convertto), used)
		key := output.Key(res.BatchID, name)

		data, cached, err := fetchOrReuse(ctx, f, sink, key, best, opts.Force)
		if err != nil {
			return saved, fmt.Errorf("item %d: %w", it.Index, err)
		}
		if !cached {
			if err := sink.SaveFile(ctx, key, data, reducer.MIMEType(name)); err != nil {
				return saved, fmt.Errorf("item %d: %w", it.Index, err)
			}
		}

		s := Saved{
			Index:  it.Index,
			Name:   name,
			URL:    best,
			Path:   sink.Path(key),
			Size:   int64(len(data)),
			SHA256: common.ContentHash(data),
			Cached: cached,
		}
		logger.Info("saved artifact", "index", it.Index, "url", best, "path", s.Path, "size", s.Size, "cached", cached)
		saved = append(saved, s)
	}
	return saved, nil
}

// fetchOrReuse returns the stored artifact under key when present, else
// downloads url.
func fetchOrReuse(ctx context.Context, f Fetcher, sink Sink, key, url string, force bool) ([]byte, bool, error) {
	if !force {
		exists, err := sink.HasFile(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if exists {
			data, err := sink.ReadFile(ctx, key)
			if err == nil {
				return data, true, nil
			}
		}
	}
	data, err := f.Fetch(ctx, url)
	return data, false, err
}
