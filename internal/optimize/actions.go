// Package optimize implements the optimize command.
package optimize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pixbatch/internal/common"
	"github.com/dtnitsch/pixbatch/internal/download"
	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/db"
	"github.com/dtnitsch/pixbatch/pkg/fetcher"
	"github.com/dtnitsch/pixbatch/pkg/reducer"
	"github.com/dtnitsch/pixbatch/pkg/storage"
)

// newClient builds the reducer client for an action.
var newClient = func(cfg models.Config, logger *slog.Logger) (*reducer.Client, error) {
	return reducer.New(cfg, reducer.WithLogger(logger))
}

func OptimizeAction(c *cli.Context) error {
	logger := common.NewLogger(c)
	startTime := time.Now()

	cfg, err := common.LoadConfig(c)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return cli.Exit(err.Error(), common.ExitUsage)
	}

	if err := common.CheckFormat(c.String("format")); err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}

	urls := common.SplitList(c.String("urls"))
	files := common.SplitList(c.String("files"))
	if c.Args().Present() {
		urls = append(urls, c.Args().Slice()...)
	}
	if len(urls) > 0 && len(files) > 0 {
		return cli.Exit("Error: Cannot use both --urls and --files flags", common.ExitUsage)
	}
	if len(urls) == 0 && len(files) == 0 {
		return cli.Exit("Error: --urls or --files is required", common.ExitUsage)
	}

	if len(urls) > 0 {
		var invalid []common.InvalidURL
		urls, invalid = common.SanitizeAndValidateURLs(urls)
		if len(invalid) > 0 {
			for _, u := range invalid {
				logger.Error("invalid URL", "index", u.Position, "url", u.URL)
			}
			return cli.Exit(fmt.Sprintf("Error: invalid URL at position %d: %q (%d invalid)",
				invalid[0].Position+1, invalid[0].URL, len(invalid)), common.ExitUsage)
		}
	}

	opts, err := common.ParseOptions(c.StringSlice("option"))
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	features, err := featureOptions(c)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	opts = opts.Merge(features)

	client, err := newClient(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return common.Exit(err)
	}

	ctx := c.Context
	var batch *reducer.Batch
	var runErr error
	if len(urls) > 0 {
		logger.Info("submitting URLs", "count", len(urls))
		batch, runErr = client.SubmitURLs(ctx, urls, opts)
	} else {
		logger.Info("uploading files", "count", len(files))
		batch, runErr = client.SubmitFiles(ctx, files, opts)
	}
	if runErr != nil {
		logger.Error("batch failed", "batch_id", batch.ID, "error", runErr)
	}

	out := BuildOutput(batch, runErr)

	var database *db.DB
	if !c.Bool("no-history") {
		database, err = db.Open(cfg.DBPath)
		if err != nil {
			logger.Warn("failed to open database", "error", err)
		} else {
			defer database.Close()
			rec, items := BuildRecord(batch, runErr)
			if err := database.RecordBatch(rec, items); err != nil {
				logger.Warn("failed to record batch", "batch_id", batch.ID, "error", err)
				database = nil
			}
		}
	}

	if runErr == nil && c.IsSet("out") {
		saved, err := saveArtifacts(c, cfg, client, batch, database, logger)
		out.Downloads = saved
		if err != nil {
			logger.Error("download failed", "batch_id", batch.ID, "error", err)
			runErr = err
			out.Error = err.Error()
		}
	}

	out.Stats.TotalTimeSeconds = time.Since(startTime).Seconds()
	if err := common.WriteOutput(c.App.Writer, c.String("format"), out); err != nil {
		return cli.Exit(err.Error(), common.ExitGeneral)
	}

	return common.Exit(runErr)
}

// saveArtifacts downloads the batch to the --out location and records each
// artifact when history is enabled.
func saveArtifacts(c *cli.Context, cfg models.Config, client *reducer.Client, batch *reducer.Batch,
	database *db.DB, logger *slog.Logger) ([]download.Saved, error) {
	ctx := c.Context
	store, err := storage.Open(ctx, common.OutputLocation(c, cfg))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	f := fetcher.NewFetcher(client.Sender(), cfg.Timeout)
	saved, err := download.Run(ctx, batch, f, store, download.Options{Logger: logger})
	if database != nil {
		for _, s := range saved {
			if _, err := database.RecordDownload(batch.ID, s.Index, s.URL, s.Path, s.Size); err != nil {
				logger.Warn("failed to record download", "batch_id", batch.ID, "index", s.Index, "error", err)
			}
		}
	}
	return saved, err
}

var resizeModes = map[string]int{
	"outer": models.ResizeOuter,
	"inner": models.ResizeInner,
	"smart": models.ResizeSmartCrop,
}

// featureOptions maps the feature flags onto service options.
func featureOptions(c *cli.Context) (models.Options, error) {
	opts := models.Options{}
	if c.IsSet("lossy") {
		opts = opts.Merge(models.LossyLevel(c.Int("lossy")))
	}
	if c.IsSet("upscale") {
		opts = opts.Merge(models.Upscale(c.Int("upscale")))
	}
	if c.Bool("bg-remove") {
		opts = opts.Merge(models.BackgroundRemove())
	}
	if size := c.String("resize"); size != "" {
		mode, ok := resizeModes[strings.ToLower(c.String("resize-mode"))]
		if !ok {
			mode = models.ResizeOuter
			if c.IsSet("resize-mode") {
				return nil, fmt.Errorf("unknown resize mode: %s (use: outer, inner or smart)", c.String("resize-mode"))
			}
		}
		w, h, err := parseSize(size)
		if err != nil {
			return nil, err
		}
		opts = opts.Merge(models.Resize(mode, w, h))
	}
	return opts, nil
}

// parseSize parses WxH, Wx or xH.
func parseSize(size string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(size)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q (want WIDTHxHEIGHT)", size)
	}
	dim := func(s string) (int, error) {
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid size %q (want WIDTHxHEIGHT)", size)
		}
		return n, nil
	}
	w, err := dim(ws)
	if err != nil {
		return 0, 0, err
	}
	h, err := dim(hs)
	if err != nil {
		return 0, 0, err
	}
	if w == 0 && h == 0 {
		return 0, 0, fmt.Errorf("invalid size %q: width or height required", size)
	}
	return w, h, nil
}
