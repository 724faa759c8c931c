package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/catalog"
	"github.com/fedragon/go-neardup/internal/config"
	"github.com/fedragon/go-neardup/internal/core"
	"github.com/fedragon/go-neardup/internal/db"
	"github.com/fedragon/go-neardup/internal/fingerprint"
	"github.com/fedragon/go-neardup/internal/models"
)

// Runner wires the catalog, the fingerprint cache, the scan engine and the
// result store behind the operations the CLI exposes. Every operation opens
// its own database handle, so a Runner holds no resources between calls.
type Runner struct {
	logger   *zap.Logger
	cfg      config.Config
	root     string
	dbPath   string
	progress core.Progress
}

func NewRunner(logger *zap.Logger, cfg config.Config, root string, dbPath string, progress core.Progress) *Runner {
	return &Runner{
		logger:   logger,
		cfg:      cfg,
		root:     root,
		dbPath:   dbPath,
		progress: progress,
	}
}

// FullScan scans the whole library and stores the result.
func (r *Runner) FullScan(ctx context.Context) (models.ScanResult, error) {
	return r.scan(ctx, func(ctx context.Context, engine *core.Engine, store db.Store) (models.ScanResult, error) {
		return engine.FullScan(ctx)
	})
}

// DeltaScan scans assets created after the previous scan's watermark. With
// no usable previous result the engine falls back to a full scan.
func (r *Runner) DeltaScan(ctx context.Context) (models.ScanResult, error) {
	return r.scan(ctx, func(ctx context.Context, engine *core.Engine, store db.Store) (models.ScanResult, error) {
		previous, err := store.LoadLatest()
		if err != nil {
			if !errors.Is(err, db.ErrNoScanResult) {
				return models.ScanResult{}, err
			}
			previous = models.ScanResult{}
		}
		return engine.DeltaScan(ctx, previous)
	})
}

// Refresh revalidates the stored result against the library without any
// hashing and stores the pruned result.
func (r *Runner) Refresh(ctx context.Context) (models.ScanResult, error) {
	return r.scan(ctx, func(ctx context.Context, engine *core.Engine, store db.Store) (models.ScanResult, error) {
		current, err := store.LoadLatest()
		if err != nil {
			return models.ScanResult{}, err
		}
		return engine.Refresh(ctx, current)
	})
}

// RemoveAssets drops the given assets from the stored result, dissolving any
// group left with fewer than two items, and stores the outcome.
func (r *Runner) RemoveAssets(ctx context.Context, assetIDs []string) (models.ScanResult, error) {
	return r.scan(ctx, func(ctx context.Context, engine *core.Engine, store db.Store) (models.ScanResult, error) {
		current, err := store.LoadLatest()
		if err != nil {
			return models.ScanResult{}, err
		}
		return engine.DeleteAssetsAndReconcile(assetIDs, current), nil
	})
}

// Result loads a stored scan result, the latest when scanID is empty.
func (r *Runner) Result(scanID string) (models.ScanResult, error) {
	var result models.ScanResult
	err := r.withStore(func(store db.Store) error {
		var err error
		if scanID == "" {
			result, err = store.LoadLatest()
		} else {
			result, err = store.LoadByID(scanID)
		}
		return err
	})
	return result, err
}

// ScanIDs lists the identifiers of all stored results.
func (r *Runner) ScanIDs() ([]string, error) {
	var ids []string
	err := r.withStore(func(store db.Store) error {
		var err error
		ids, err = store.ScanIDs()
		return err
	})
	return ids, err
}

// Forget drops every stored scan result.
func (r *Runner) Forget() error {
	return r.withStore(func(store db.Store) error {
		return store.Forget()
	})
}

// Export writes a stored result to the given path as indented JSON.
func (r *Runner) Export(scanID string, path string) error {
	result, err := r.Result(scanID)
	if err != nil {
		return err
	}
	return db.Export(path, result)
}

type scanFunc func(ctx context.Context, engine *core.Engine, store db.Store) (models.ScanResult, error)

// scan holds the scan lock for the duration of a mutating operation and
// persists its outcome. Failed scans leave the stored result untouched.
func (r *Runner) scan(ctx context.Context, run scanFunc) (models.ScanResult, error) {
	start := time.Now()
	defer func() {
		r.logger.Info("Elapsed time", zap.Duration("elapsed", time.Since(start)))
	}()

	lock := flock.New(r.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return models.ScanResult{}, fmt.Errorf("acquiring scan lock: %w", err)
	}
	if !locked {
		return models.ScanResult{}, fmt.Errorf("another scan is already running (lock %v)", r.lockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("Releasing scan lock failed", zap.Error(err))
		}
	}()

	var result models.ScanResult
	err = r.withStore(func(store db.Store) error {
		engine, err := r.engine()
		if err != nil {
			return err
		}

		result, err = run(ctx, engine, store)
		if err != nil {
			return err
		}

		if err := store.SaveLatest(result); err != nil {
			return fmt.Errorf("storing scan result: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.ScanResult{}, err
	}
	return result, nil
}

func (r *Runner) withStore(fn func(store db.Store) error) error {
	conn, err := db.Connect(r.dbPath)
	if err != nil {
		return fmt.Errorf("opening database %v: %w", r.dbPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			r.logger.Info(err.Error())
		}
	}()

	store, err := db.NewStore(conn, r.logger)
	if err != nil {
		return err
	}
	return fn(store)
}

func (r *Runner) engine() (*core.Engine, error) {
	cat, err := catalog.NewFS(r.root, catalog.FSOptions{
		FFprobeBinary: r.cfg.Scan.FFprobeBinary,
		FFmpegBinary:  r.cfg.Scan.FFmpegBinary,
	}, r.logger)
	if err != nil {
		return nil, err
	}

	cache := fingerprint.NewCache(fingerprint.NewComputer(cat, r.cfg.Hashing, r.logger), r.logger)

	r.logger.Info("Determined number of workers", zap.Int("num_workers", r.cfg.Scan.Workers))

	return &core.Engine{
		Catalog:    cat,
		Cache:      cache,
		Comparator: core.NewComparator(r.cfg),
		NumWorkers: r.cfg.Scan.Workers,
		Logger:     r.logger,
		Progress:   r.progress,
	}, nil
}

func (r *Runner) lockPath() string {
	return r.dbPath + ".lock"
}
