package index

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/store"
)

// includeNode is one segment of a tree of dotted include paths.
type includeNode struct {
	names    []string
	children map[string]*includeNode
}

func newIncludeTree(paths []string) *includeNode {
	root := &includeNode{children: map[string]*includeNode{}}
	for _, p := range paths {
		node := root
		for _, name := range strings.Split(p, ".") {
			if name == "" {
				continue
			}
			child, ok := node.children[name]
			if !ok {
				child = &includeNode{children: map[string]*includeNode{}}
				node.children[name] = child
				node.names = append(node.names, name)
			}
			node = child
		}
	}
	return root
}

type includeStep struct {
	resource *card.Resource
	node     *includeNode
}

// materialize returns the document of rec with the resources reachable over
// its default include paths added to included. Related cards are loaded from
// the store, level by level, with bounded concurrency.
func (ix *Index) materialize(ctx context.Context, rec *store.Record) (*card.Document, error) {
	doc := rec.Document.Clone()
	root := doc.Data.Key()

	pool := make(map[string]*card.Resource, len(doc.Included)+1)
	pool[root] = doc.Data
	seen := map[string]bool{root: true}
	for _, r := range doc.Included {
		pool[r.Key()] = r
		seen[r.Key()] = true
	}
	loaded := map[string]bool{doc.Data.ID: true}

	frontier := []includeStep{{resource: doc.Data, node: newIncludeTree(rec.DefaultIncludes)}}
	for len(frontier) > 0 {
		var missing []string
		for _, step := range frontier {
			for _, name := range step.node.names {
				for _, ref := range step.resource.Linkage(name).Identifiers() {
					if _, ok := pool[ref.Key()]; ok || !card.IsCard(ref.Type, ref.ID) || loaded[ref.ID] {
						continue
					}
					loaded[ref.ID] = true
					missing = append(missing, ref.ID)
				}
			}
		}

		related, err := ix.loadCards(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			other, ok := related[id]
			if !ok {
				continue
			}
			pool[other.Data.Key()] = other.Data
			for _, r := range other.Included {
				if _, ok := pool[r.Key()]; !ok {
					pool[r.Key()] = r
				}
			}
		}

		var next []includeStep
		for _, step := range frontier {
			for _, name := range step.node.names {
				child := step.node.children[name]
				for _, ref := range step.resource.Linkage(name).Identifiers() {
					r, ok := pool[ref.Key()]
					if !ok {
						continue
					}
					if !seen[ref.Key()] {
						seen[ref.Key()] = true
						doc.Included = append(doc.Included, r)
					}
					if len(child.names) > 0 {
						next = append(next, includeStep{resource: r, node: child})
					}
				}
			}
		}
		frontier = next
	}
	return doc, nil
}

// loadCards fetches the stored documents of ids in parallel. Cards that do
// not exist are left out of the result.
func (ix *Index) loadCards(ctx context.Context, ids []string) (map[string]*card.Document, error) {
	out := make(map[string]*card.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(ix.concurrency)

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		eg.Go(func() error {
			rec, err := ix.store.Get(egctx, id)
			if err != nil {
				if card.IsNotFound(err) {
					ix.logger.Debug("included card is not indexed", zap.String("card", id))
					return nil
				}
				return err
			}
			mu.Lock()
			out[id] = rec.Document
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
