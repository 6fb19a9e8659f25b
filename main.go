package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pixbatch/internal/db"
	"github.com/dtnitsch/pixbatch/internal/download"
	"github.com/dtnitsch/pixbatch/internal/optimize"
	"github.com/dtnitsch/pixbatch/models"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "pixbatch",
		Usage:   "Optimize batches of images through the ShortPixel API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load (default: .env)",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "ShortPixel API key (overrides PIXBATCH_API_KEY)",
			},
			&cli.StringFlag{
				Name:  "proxy",
				Usage: "proxy URL (http, https, socks5)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: fmt.Sprintf("batch history database (default: %s)", models.DefaultDBName),
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "yaml",
				Usage: "output format: yaml or json",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "only log errors",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log debug output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "optimize",
				Usage:     "Submit images for optimization and wait for the results",
				ArgsUsage: "[url ...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "urls",
						Usage: "comma-separated image URLs",
					},
					&cli.StringFlag{
						Name:  "files",
						Usage: "comma-separated local image files to upload",
					},
					&cli.StringSliceFlag{
						Name:  "option",
						Usage: "optimization parameter as key=value (repeatable)",
					},
					&cli.IntFlag{
						Name:  "lossy",
						Usage: "compression: 0 lossless, 1 lossy, 2 glossy",
					},
					&cli.IntFlag{
						Name:  "upscale",
						Usage: "upscale factor: 2, 3 or 4",
					},
					&cli.StringFlag{
						Name:  "resize",
						Usage: "resize to WIDTHxHEIGHT (either may be omitted)",
					},
					&cli.StringFlag{
						Name:  "resize-mode",
						Value: "outer",
						Usage: "resize mode: outer, inner or smart",
					},
					&cli.BoolFlag{
						Name:  "bg-remove",
						Usage: "remove the image background",
					},
					&cli.StringFlag{
						Name:  "convert",
						Usage: "target format (e.g. webp, avif, +webp)",
					},
					&cli.IntFlag{
						Name:  "wait",
						Usage: "seconds the service waits before answering (0-30)",
					},
					&cli.IntFlag{
						Name:  "retries",
						Usage: "retries for temporary failures",
					},
					&cli.BoolFlag{
						Name:  "no-poll",
						Usage: "return pending items instead of polling",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "download optimized files to a directory or bucket URL (mem://, file:///dir)",
					},
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "do not record the batch in the database",
					},
				},
				Action: optimize.OptimizeAction,
			},
			{
				Name:      "download",
				Usage:     "Download the optimized files of a recorded batch (latest if omitted)",
				ArgsUsage: "[batch-id]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: fmt.Sprintf("directory or bucket URL (default: %s)", models.DefaultOutputDir),
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "re-download files that already exist",
					},
				},
				Action: download.DownloadAction,
			},
			{
				Name:  "db",
				Usage: "Inspect the batch history",
				Subcommands: []*cli.Command{
					{
						Name:  "batches",
						Usage: "List recorded batches",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "limit",
								Value: 20,
								Usage: "maximum number of batches",
							},
						},
						Action: db.BatchesAction,
					},
					{
						Name:      "batch",
						Usage:     "Show one batch (latest if omitted)",
						ArgsUsage: "[batch-id]",
						Action:    db.BatchAction,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
