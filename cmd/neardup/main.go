package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal"
	"github.com/fedragon/go-neardup/internal/config"
	"github.com/fedragon/go-neardup/internal/core"
	"github.com/fedragon/go-neardup/internal/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "neardup",
		Usage:   "find exact and near-duplicate photos and videos in a media library",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "directory holding the scan database",
			},
			&cli.StringFlag{
				Name:    "library",
				Aliases: []string{"l"},
				Usage:   "root directory of the media library",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of comparison workers (overrides the configuration)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			deltaCommand(),
			refreshCommand(),
			removeCommand(),
			reportCommand(),
			forgetCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "run a full scan of the library",
		Action: func(c *cli.Context) error {
			env, err := setup(c, true)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.runner.FullScan(c.Context)
			if err != nil {
				return err
			}

			fmt.Println(summarize(result))
			return nil
		},
	}
}

func deltaCommand() *cli.Command {
	return &cli.Command{
		Name:  "delta",
		Usage: "scan only assets added since the previous scan",
		Action: func(c *cli.Context) error {
			env, err := setup(c, true)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.runner.DeltaScan(c.Context)
			if err != nil {
				return err
			}

			fmt.Println(summarize(result))
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "drop stale assets from the stored result without rescanning",
		Action: func(c *cli.Context) error {
			env, err := setup(c, true)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.runner.Refresh(c.Context)
			if err != nil {
				return describeNoResult(err)
			}

			fmt.Println(summarize(result))
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "drop assets from the stored result, dissolving groups left with one item",
		ArgsUsage: "ASSET_ID [ASSET_ID...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("remove: at least one asset ID is required")
			}

			env, err := setup(c, true)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.runner.RemoveAssets(c.Context, c.Args().Slice())
			if err != nil {
				return describeNoResult(err)
			}

			fmt.Println(summarize(result))
			return nil
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "show duplicate groups from a stored scan result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "scan-id",
				Usage: "show a specific stored result instead of the latest",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the result as JSON",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "write the result to a file as indented JSON",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "list stored scan IDs and exit",
			},
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c, false)
			if err != nil {
				return err
			}
			defer env.close()

			if c.Bool("list") {
				ids, err := env.runner.ScanIDs()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			}

			if path := c.String("export"); path != "" {
				if err := env.runner.Export(c.String("scan-id"), path); err != nil {
					return describeNoResult(err)
				}
				fmt.Printf("Exported to %v\n", path)
				return nil
			}

			result, err := env.runner.Result(c.String("scan-id"))
			if err != nil {
				return describeNoResult(err)
			}

			if c.Bool("json") {
				return printJSON(os.Stdout, result)
			}

			fmt.Println(summarize(result))
			if len(result.Groups) > 0 {
				fmt.Println(renderGroups(result.Groups))
			}
			return nil
		},
	}
}

func forgetCommand() *cli.Command {
	return &cli.Command{
		Name:  "forget",
		Usage: "delete all stored scan results",
		Action: func(c *cli.Context) error {
			env, err := setup(c, false)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.runner.Forget(); err != nil {
				return err
			}

			fmt.Println("All stored scan results deleted")
			return nil
		},
	}
}

type env struct {
	logger *zap.Logger
	runner *internal.Runner
}

func (e *env) close() {
	_ = e.logger.Sync()
}

func setup(c *cli.Context, needLibrary bool) (*env, error) {
	logger, err := newLogger(c.Bool("verbose"))
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.Scan.Workers = workers
	}

	dataDir := c.String("data-dir")
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, err
		}
	}
	if err := config.EnsureDataDir(dataDir); err != nil {
		return nil, err
	}

	root := c.String("library")
	if needLibrary && root == "" {
		return nil, errors.New("--library is required for this command")
	}

	dbPath := filepath.Join(dataDir, "neardup.db")
	return &env{
		logger: logger,
		runner: internal.NewRunner(logger, cfg, root, dbPath, phaseLogger(logger)),
	}, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// phaseLogger logs phase transitions once, swallowing the per-bucket fraction
// updates workers emit concurrently.
func phaseLogger(logger *zap.Logger) core.Progress {
	last := atomic.NewString("")
	return func(phase core.Phase, fraction float64) {
		if last.Swap(string(phase)) != string(phase) {
			logger.Info("Scan phase", zap.String("phase", string(phase)))
		}
	}
}

func describeNoResult(err error) error {
	if errors.Is(err, db.ErrNoScanResult) {
		return errors.New("no scan results stored yet, run 'neardup scan' first")
	}
	return err
}
