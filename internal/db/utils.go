package db

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pixbatch/internal/common"
	dbpkg "github.com/dtnitsch/pixbatch/pkg/db"
)

// GetBatchIDOrLatest returns the batch ID from args, or the latest batch if not provided
func GetBatchIDOrLatest(c *cli.Context, database *dbpkg.DB) (string, error) {
	if id := strings.TrimSpace(c.Args().First()); id != "" {
		return id, nil
	}

	id, err := database.LatestBatchID()
	if err != nil {
		return "", cli.Exit(fmt.Sprintf("no batches found. Run 'pixbatch optimize --urls \"...\"' first (%v)", err),
			common.ExitUsage)
	}
	return id, nil
}
