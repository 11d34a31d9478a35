// Package artifact writes build artifacts for indexed cards. Builds are keyed
// by the content hash of the clean card and are only invalidated explicitly.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// DefaultCacheSize is the number of card hashes remembered by a Builder.
const DefaultCacheSize = 1024

// Sink stores artifact files.
type Sink interface {
	// Write stores files under dir. A nil content removes the file.
	Write(ctx context.Context, dir string, files map[string][]byte) error
	// Remove deletes dir and everything in it.
	Remove(ctx context.Context, dir string) error
}

// Build describes the outcome of building one card.
type Build struct {
	ID      string
	CardID  string
	Hash    string
	Dir     string
	Files   []string
	Skipped bool
}

// Builder builds card artifacts into a Sink.
type Builder struct {
	sink   Sink
	hashes *lru.Cache[string, string]
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]map[string]bool
}

// NewBuilder creates a builder writing to sink that remembers the hashes of
// up to size cards.
func NewBuilder(sink Sink, size int, logger *zap.Logger) (*Builder, error) {
	if sink == nil {
		return nil, errors.New("artifact sink is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	hashes, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create hash cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		sink:   sink,
		hashes: hashes,
		logger: logger,
		seen:   make(map[string]map[string]bool),
	}, nil
}

// Build writes the artifacts of an internal card. Nothing is written when
// the card is unchanged since its last build or when its version was already
// built.
func (b *Builder) Build(ctx context.Context, internal *card.Document) (*Build, error) {
	if internal == nil || internal.Data == nil {
		return nil, errors.New("artifact build: card document has no primary data")
	}
	id := internal.Data.ID
	if _, ok := card.CardID(id); !ok {
		return nil, fmt.Errorf("artifact build: '%s' is not a card id", id)
	}
	dir, err := Dir(id)
	if err != nil {
		return nil, err
	}

	version := ""
	if v, ok := internal.Data.Meta["version"]; ok && v != nil {
		version = fmt.Sprint(v)
	}

	clean := CleanCard(internal)
	hash, err := Hash(clean)
	if err != nil {
		return nil, err
	}
	build := &Build{ID: uuid.NewString(), CardID: id, Hash: hash, Dir: dir}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.hashes.Get(id); ok && prev == hash {
		build.Skipped = true
		return build, nil
	}
	if version != "" && b.seen[id][version] {
		b.logger.Debug("card version already built", zap.String("card", id), zap.String("version", version))
		build.Skipped = true
		return build, nil
	}

	files, err := Files(clean)
	if err != nil {
		return nil, err
	}
	b.logger.Info("generating card artifacts", zap.String("card", id), zap.String("dir", build.Dir), zap.String("build", build.ID))
	if err := b.sink.Write(ctx, build.Dir, files); err != nil {
		return nil, fmt.Errorf("write artifacts for '%s': %w", id, err)
	}

	for name, content := range files {
		if content != nil {
			build.Files = append(build.Files, name)
		}
	}
	sort.Strings(build.Files)

	b.hashes.Add(id, hash)
	if version != "" {
		if b.seen[id] == nil {
			b.seen[id] = make(map[string]bool)
		}
		b.seen[id][version] = true
	}
	return build, nil
}

// Hash reports the hash of the last build of a card.
func (b *Builder) Hash(id string) (string, bool) {
	return b.hashes.Peek(id)
}

// Invalidate removes the artifacts of every card whose last build has hash.
// The next build of those cards writes again.
func (b *Builder) Invalidate(ctx context.Context, hash string) error {
	b.mu.Lock()
	var ids []string
	for _, id := range b.hashes.Keys() {
		if h, ok := b.hashes.Peek(id); ok && h == hash {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	for _, id := range ids {
		if err := b.InvalidateCard(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateCard forgets the build state of a card and removes its
// artifacts.
func (b *Builder) InvalidateCard(ctx context.Context, id string) error {
	dir, err := Dir(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.hashes.Remove(id)
	delete(b.seen, id)
	b.mu.Unlock()

	if err := b.sink.Remove(ctx, dir); err != nil {
		return fmt.Errorf("remove artifacts for '%s': %w", id, err)
	}
	b.logger.Info("invalidated card artifacts", zap.String("card", id))
	return nil
}
