package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"statefacts/internal/blob"
	"statefacts/internal/catalog"
	"statefacts/internal/config"
	"statefacts/internal/core"
	"statefacts/internal/logging"
	"statefacts/pkg/domain"
)

// runtime is the set of collaborators shared by the commands.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	blobs   blob.Store
	catalog *catalog.Catalog
	store   domain.FactStore
}

// bootstrap loads config and opens the blob store and catalog. The fact
// store is opened only when withStore is set.
func bootstrap(ctx context.Context, opts *RootOptions, logOut io.Writer, withStore bool) (*runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.LoggingConfig()
	logCfg.Output = logOut
	rt := &runtime{cfg: cfg, logger: logging.New(logCfg)}

	rt.blobs, err = blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	rt.catalog, err = catalog.Load(ctx, rt.blobs, cfg.Catalog.Key)
	if err != nil {
		return nil, err
	}
	if !withStore {
		return rt, nil
	}

	storeCfg := cfg.StorageConfig()
	storeCfg.Logger = rt.logger
	rt.store, err = core.OpenStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", storeCfg.Driver, err)
	}
	rt.logger.Debug("fact store opened", "driver", storeCfg.Driver)
	return rt, nil
}

// serviceOptions returns the Service options derived from config.
func (rt *runtime) serviceOptions() []core.Option {
	return []core.Option{
		core.WithLogger(rt.logger),
		core.WithPolicy(rt.cfg.Policy()),
		core.WithStoreTimeout(rt.cfg.Storage.Timeout),
	}
}

func (rt *runtime) close() error {
	if rt.store == nil {
		return nil
	}
	if err := rt.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// closeWith folds the close error into err.
func (rt *runtime) closeWith(err error) error {
	return errors.Join(err, rt.close())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
