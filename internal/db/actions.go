package db

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pixbatch/internal/common"
	dbpkg "github.com/dtnitsch/pixbatch/pkg/db"
	"github.com/dtnitsch/pixbatch/pkg/spcode"
)

func openDatabase(c *cli.Context) (*dbpkg.DB, error) {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), common.ExitUsage)
	}
	database, err := dbpkg.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// BatchesAction lists recorded batches, most recent first.
func BatchesAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	batches, err := database.ListBatches(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}

	w := c.App.Writer
	if len(batches) == 0 {
		fmt.Fprintln(w, "No batches found")
		return nil
	}

	// Print table header
	fmt.Fprintf(w, "%-36s %-20s %-7s %-6s %-6s %-7s %-8s %-10s\n",
		"Batch ID", "Created", "Mode", "Items", "Ready", "Failed", "Pending", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 106))

	for _, b := range batches {
		fmt.Fprintf(w, "%-36s %-20s %-7s %-6d %-6d %-7d %-8d %-10s\n",
			b.BatchID,
			b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			b.Mode,
			b.ItemCount,
			b.ReadyCount,
			b.FailedCount,
			b.PendingCount,
			b.Status,
		)
	}

	fmt.Fprintf(w, "\nTotal: %d batches\n", len(batches))
	fmt.Fprintf(w, "\nTip: Use 'pixbatch db batch <id>' to see details\n")

	return nil
}

// BatchAction shows details for a specific batch
func BatchAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	batchID, err := GetBatchIDOrLatest(c, database)
	if err != nil {
		return err
	}

	batch, err := database.GetBatch(batchID)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	items, err := database.GetBatchItems(batchID)
	if err != nil {
		return err
	}
	downloads, err := database.ListDownloads(batchID)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Batch %s\n", batch.BatchID)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Created:     %s\n", batch.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Mode:        %s\n", batch.Mode)
	fmt.Fprintf(w, "Status:      %s\n", batch.Status)
	fmt.Fprintf(w, "Items:       %d total (%d ready, %d failed, %d pending)\n",
		batch.ItemCount, batch.ReadyCount, batch.FailedCount, batch.PendingCount)
	if batch.Options != "" {
		fmt.Fprintf(w, "Options:     %s\n", batch.Options)
	}
	if batch.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:       [%s] %s\n", batch.ErrorKind, batch.ErrorMessage)
	}

	fmt.Fprintf(w, "\nItems (%d):\n", len(items))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, it := range items {
		fmt.Fprintf(w, "%2d. [%s] %s\n", it.Index+1, it.State, it.Input)
		if it.ErrorMessage != "" {
			fmt.Fprintf(w, "    Error: [%s] %s\n", it.ErrorKind, it.ErrorMessage)
		} else if it.Message != "" {
			fmt.Fprintf(w, "    Status: %d %s\n", it.Code, it.Message)
		}
		if doc := spcode.Describe(it.Code); doc != "" && doc != it.ErrorMessage && doc != it.Message {
			fmt.Fprintf(w, "    Code %d: %s\n", it.Code, doc)
		}
	}

	if len(downloads) > 0 {
		fmt.Fprintf(w, "\nDownloads (%d):\n", len(downloads))
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, d := range downloads {
			fmt.Fprintf(w, "%2d. %s (%d bytes)\n", d.Index+1, d.Location, d.SizeBytes)
		}
	}

	fmt.Fprintf(w, "\nTip: Use 'pixbatch download %s' to save the optimized files\n", batchID)

	return nil
}
