package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/artifact"
	"github.com/NullVoxPopuli/cardstack/internal/cache"
	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/cli/ui"
	"github.com/NullVoxPopuli/cardstack/internal/config"
	"github.com/NullVoxPopuli/cardstack/internal/index"
	"github.com/NullVoxPopuli/cardstack/internal/realm"
	"github.com/NullVoxPopuli/cardstack/internal/schema"
	"github.com/NullVoxPopuli/cardstack/internal/store"
)

// app is the index and its backing services as described by the config.
type app struct {
	config  *config.Config
	logger  *zap.Logger
	index   *index.Index
	closers []func() error
}

// openApp wires the store, cache and artifact builder for cfg.
func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, logger: logger, closers: []func() error{st.Close}}

	opts := []index.Option{
		index.WithLogger(logger),
		index.WithFetchConcurrency(cfg.Index.FetchConcurrency),
	}
	sink, err := openSink(cfg.Artifacts)
	if err != nil {
		a.Close()
		return nil, err
	}
	if sink != nil {
		builder, err := artifact.NewBuilder(sink, cfg.Artifacts.CacheSize, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, index.WithBuilder(builder))
	}

	a.index = index.New(st, schema.New(), opts...)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case config.DriverMemory:
		st = store.NewMemoryStore()
	default:
		sqlStore, err := store.OpenSQL(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.Table)
		if err != nil {
			return nil, err
		}
		st = sqlStore
	}

	cacheConfig := cache.Config{DefaultTTL: cfg.Cache.TTL, Prefix: cfg.Cache.Prefix}
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		return store.NewCachedStore(st, cache.NewMemoryCacheWithConfig(cacheConfig), cfg.Cache.TTL, logger), nil
	case config.CacheRedis:
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Cache:    cacheConfig,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		return store.NewCachedStore(st, c, cfg.Cache.TTL, logger), nil
	}
	return st, nil
}

func openSink(cfg config.ArtifactConfig) (artifact.Sink, error) {
	switch cfg.Sink {
	case config.SinkFile:
		return artifact.NewFileSink(cfg.Dir)
	case config.SinkS3:
		return artifact.NewS3Sink(artifact.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
	}
	return nil, nil
}

// loadRealms ingests every card of the configured realms. Cards are ingested
// in one batch so that cards a card adopts from go first.
func (a *app) loadRealms(ctx context.Context) (int, error) {
	var docs []*card.Document
	for _, r := range a.config.Realms {
		loaded, err := r.Load(ctx)
		if err != nil {
			return 0, err
		}
		docs = append(docs, loaded...)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := a.index.IngestAll(ctx, docs); err != nil {
		return 0, err
	}
	a.logger.Info("loaded realms", zap.Int("realms", len(a.config.Realms)), zap.Int("cards", len(docs)))
	return len(docs), nil
}

// ephemeral reports whether the index forgets its cards on exit, in which
// case read commands load the realms first.
func (a *app) ephemeral() bool {
	return a.config.Store.Driver == config.DriverMemory
}

// Close releases the backing services.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// withApp loads the configuration, opens the app and runs fn with it.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// configError marks configuration failures for reporting.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// suggestedError carries card ids close to the one that was not found.
type suggestedError struct {
	err         error
	suggestions []string
}

func (e *suggestedError) Error() string { return e.err.Error() }
func (e *suggestedError) Unwrap() error { return e.err }

// withSuggestions attaches similar card ids to a not found error.
func withSuggestions(ctx context.Context, ix *index.Index, id string, err error) error {
	if !card.IsNotFound(err) {
		return err
	}
	coll, listErr := ix.List(ctx, card.FormatEmbedded)
	if listErr != nil {
		return err
	}
	ids := make([]string, 0, len(coll.Data))
	for _, r := range coll.Data {
		ids = append(ids, r.ID)
	}
	return &suggestedError{err: err, suggestions: ui.Similar(id, ids, 3)}
}

func writeError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()

	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		fmt.Fprint(w, ui.ConfigError(cfgErr.err.Error(), color.NoColor))
		return
	}
	var suggested *suggestedError
	if errors.As(err, &suggested) {
		fmt.Fprint(w, ui.CardError(suggested.err, suggested.suggestions, color.NoColor))
		return
	}
	fmt.Fprint(w, ui.CardError(err, nil, color.NoColor))
}

// findRealm returns the configured realm owning id.
func findRealm(cfg *config.Config, id string) (realm.Realm, error) {
	r, ok := realm.Find(cfg.Realms, id)
	if !ok {
		return realm.Realm{}, fmt.Errorf("no realm is configured for card '%s'", id)
	}
	return r, nil
}
