package download

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pixbatch/internal/common"
	dbpkg "github.com/dtnitsch/pixbatch/pkg/db"
	"github.com/dtnitsch/pixbatch/pkg/fetcher"
	"github.com/dtnitsch/pixbatch/pkg/storage"
	"github.com/dtnitsch/pixbatch/pkg/transport"
)

// DownloadOutput is the structured output of the download command.
type DownloadOutput struct {
	BatchID   string  `json:"batch_id" yaml:"batch_id"`
	Location  string  `json:"location" yaml:"location"`
	Downloads []Saved `json:"downloads" yaml:"downloads"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// newSender builds the transport used for artifact downloads.
var newSender = func(proxy string) transport.Sender {
	return transport.NewHTTPSender(proxy)
}

// DownloadAction saves the artifacts of a recorded batch, the latest one
// when no batch ID is given.
func DownloadAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	cfg, err := common.LoadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	if err := common.CheckFormat(c.String("format")); err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}

	database, err := dbpkg.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	batchID := c.Args().First()
	if batchID == "" {
		batchID, err = database.LatestBatchID()
		if err != nil {
			return cli.Exit("no batches found. Run 'pixbatch optimize --urls \"...\"' first", common.ExitUsage)
		}
	}

	batch, err := database.GetBatch(batchID)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	items, err := database.GetBatchItems(batchID)
	if err != nil {
		return err
	}
	src, err := FromHistory(batch, items)
	if err != nil {
		return err
	}

	ctx := c.Context
	location := common.OutputLocation(c, cfg)
	store, err := storage.Open(ctx, location)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	defer store.Close()

	f := fetcher.NewFetcher(newSender(cfg.Proxy), cfg.Timeout)
	saved, runErr := Run(ctx, src, f, store, Options{Force: c.Bool("force"), Logger: logger.With("batch_id", batchID)})
	for _, s := range saved {
		if _, err := database.RecordDownload(batchID, s.Index, s.URL, s.Path, s.Size); err != nil {
			logger.Warn("failed to record download", "batch_id", batchID, "index", s.Index, "error", err)
		}
	}

	out := &DownloadOutput{BatchID: batchID, Location: store.Location(), Downloads: saved}
	if runErr != nil {
		logger.Error("download failed", "batch_id", batchID, "error", runErr)
		out.Error = runErr.Error()
	}
	if err := common.WriteOutput(c.App.Writer, c.String("format"), out); err != nil {
		return cli.Exit(err.Error(), common.ExitGeneral)
	}
	return common.Exit(runErr)
}
