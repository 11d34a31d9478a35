// Package index ingests external card documents, stores their internal form
// and serves adapted reads.
package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/artifact"
	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/store"
)

// DefaultFetchConcurrency bounds parallel related card loads while
// materializing default includes.
const DefaultFetchConcurrency = 8

// Builder produces build artifacts for ingested cards.
type Builder interface {
	Build(ctx context.Context, internal *card.Document) (*artifact.Build, error)
	InvalidateCard(ctx context.Context, id string) error
}

// Index is the card indexing service.
type Index struct {
	store       store.Store
	schema      card.Schema
	builder     Builder
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithBuilder builds artifacts for every ingested card.
func WithBuilder(b Builder) Option {
	return func(ix *Index) { ix.builder = b }
}

// WithFetchConcurrency bounds parallel related card loads.
func WithFetchConcurrency(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// New creates an index over st. schema is the base schema every card schema
// is applied to.
func New(st store.Store, schema card.Schema, opts ...Option) *Index {
	ix := &Index{
		store:       st,
		schema:      schema,
		logger:      zap.NewNop(),
		concurrency: DefaultFetchConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Ingest validates an external card document, converts it to its internal
// form and stores it together with its default includes. It returns the
// stored internal document.
func (ix *Index) Ingest(ctx context.Context, external *card.Document) (*card.Document, error) {
	stored := ix.stored()
	internal, err := card.GenerateInternal(ctx, ix.schema, external, stored)
	if err != nil {
		return nil, err
	}
	if err := card.ValidatePathSegments(internal.ID()); err != nil {
		return nil, err
	}
	if err := card.ValidateInternal(ctx, ix.schema, internal, stored); err != nil {
		return nil, err
	}
	ct, err := card.DeriveContentType(ctx, internal, stored)
	if err != nil {
		return nil, err
	}

	rec := &store.Record{
		ID:              internal.ID(),
		Document:        internal,
		DefaultIncludes: ct.DefaultIncludes,
		Version:         version(internal),
		UpdatedAt:       ix.now().UTC(),
	}
	if err := ix.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("indexing card '%s': %w", rec.ID, err)
	}
	ix.logger.Info("indexed card",
		zap.String("card", rec.ID),
		zap.String("version", rec.Version),
		zap.Int("default_includes", len(rec.DefaultIncludes)),
	)

	if ix.builder != nil {
		build, err := ix.builder.Build(ctx, internal)
		if err != nil {
			return nil, fmt.Errorf("building card '%s': %w", rec.ID, err)
		}
		if build.Skipped {
			ix.logger.Debug("card artifacts unchanged", zap.String("card", rec.ID), zap.String("hash", build.Hash))
		} else {
			ix.logger.Info("built card artifacts", zap.String("card", rec.ID), zap.String("hash", build.Hash), zap.Int("files", len(build.Files)))
		}
	}
	return internal, nil
}

// IngestAll ingests a batch of external documents, ingesting the cards a
// card adopts from before the card itself when both are in the batch.
func (ix *Index) IngestAll(ctx context.Context, docs []*card.Document) error {
	byID := make(map[string]*card.Document, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if _, dup := byID[doc.ID()]; !dup {
			ids = append(ids, doc.ID())
		}
		byID[doc.ID()] = doc
	}
	sort.Strings(ids)

	done := make(map[string]bool, len(docs))
	var visit func(id string, depth int) error
	visit = func(id string, depth int) error {
		doc, ok := byID[id]
		if !ok || done[id] {
			return nil
		}
		done[id] = true
		if parent := doc.Data.AdoptedFromID(); parent != "" && depth < len(docs) {
			if err := visit(parent, depth+1); err != nil {
				return err
			}
		}
		if _, err := ix.Ingest(ctx, doc); err != nil {
			return fmt.Errorf("ingesting '%s': %w", id, err)
		}
		return nil
	}

	for _, id := range ids {
		if err := visit(id, 0); err != nil {
			return err
		}
	}
	return nil
}

// FetchInternalCard loads a stored card with its default includes
// materialized.
func (ix *Index) FetchInternalCard(ctx context.Context, id string) (*card.Document, error) {
	rec, err := ix.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return ix.materialize(ctx, rec)
}

// Get returns the external document of a card in format.
func (ix *Index) Get(ctx context.Context, id string, format card.Format) (*card.Document, error) {
	rec, err := ix.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := card.ValidateInternal(ctx, ix.schema, rec.Document, ix.stored()); err != nil {
		return nil, err
	}
	internal, err := ix.materialize(ctx, rec)
	if err != nil {
		return nil, err
	}
	return ix.adapter().Adapt(ctx, internal, format)
}

// List returns every stored card adapted to format.
func (ix *Index) List(ctx context.Context, format card.Format) (*card.Collection, error) {
	records, err := ix.store.List(ctx)
	if err != nil {
		return nil, err
	}

	coll := &card.Collection{Data: make([]*card.Resource, 0, len(records))}
	for _, rec := range records {
		doc, err := ix.materialize(ctx, rec)
		if err != nil {
			return nil, err
		}
		coll.Data = append(coll.Data, doc.Data)
		coll.Included = append(coll.Included, doc.Included...)
	}
	coll.Included = card.UniqueResources(coll.Included)
	return ix.adapter().AdaptCollection(ctx, coll, format)
}

// Delete removes a card from the index and drops its artifacts.
func (ix *Index) Delete(ctx context.Context, id string) error {
	if err := ix.store.Delete(ctx, id); err != nil {
		return err
	}
	if ix.builder != nil {
		if err := ix.builder.InvalidateCard(ctx, id); err != nil {
			ix.logger.Warn("failed to invalidate card artifacts", zap.String("card", id), zap.Error(err))
		}
	}
	ix.logger.Info("removed card", zap.String("card", id))
	return nil
}

// Schema returns the base schema of the index.
func (ix *Index) Schema() card.Schema {
	return ix.schema
}

// stored fetches cards as stored, without materializing their includes.
func (ix *Index) stored() card.Fetcher {
	return card.FetchFunc(func(ctx context.Context, id string) (*card.Document, error) {
		rec, err := ix.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return rec.Document, nil
	})
}

func (ix *Index) adapter() *card.Adapter {
	return &card.Adapter{Schema: ix.schema, Privileged: ix}
}

func version(doc *card.Document) string {
	v, ok := doc.Data.Meta["version"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
