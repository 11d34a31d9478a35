package card

import (
	"context"
	"errors"
)

// Fetcher loads internal card documents by card id.
type Fetcher interface {
	FetchInternalCard(ctx context.Context, id string) (*Document, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, id string) (*Document, error)

// FetchInternalCard calls f.
func (f FetchFunc) FetchInternalCard(ctx context.Context, id string) (*Document, error) {
	return f(ctx, id)
}

// IgnoreNotFound wraps f so that missing cards yield a nil document instead
// of an error.
func IgnoreNotFound(f Fetcher) Fetcher {
	return FetchFunc(func(ctx context.Context, id string) (*Document, error) {
		doc, err := f.FetchInternalCard(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return doc, nil
	})
}

var errNoFetcher = errors.New("card: no fetcher to resolve the adoption chain")

// ResolveChain follows adopted-from links from doc and returns the ancestor
// documents nearest first. Ancestors are fetched one at a time since each
// link is read from the previous ancestor. A nil document from the fetcher
// ends the chain; errors are returned unchanged. A chain that revisits a card,
// doc itself included, fails with ErrCyclicAdoption.
func ResolveChain(ctx context.Context, doc *Document, fetch Fetcher) ([]*Document, error) {
	if doc == nil || doc.Data == nil {
		return nil, nil
	}

	visited := map[string]bool{doc.Data.ID: true}
	path := []string{doc.Data.ID}
	chain := make([]*Document, 0)

	current := doc
	for {
		next := current.Data.AdoptedFromID()
		if next == "" {
			return chain, nil
		}
		if visited[next] {
			return nil, cyclicAdoption(path, next)
		}
		if fetch == nil {
			return nil, errNoFetcher
		}

		ancestor, err := fetch.FetchInternalCard(ctx, next)
		if err != nil {
			return nil, err
		}
		if ancestor == nil || ancestor.Data == nil {
			return chain, nil
		}

		visited[next] = true
		path = append(path, next)
		chain = append(chain, ancestor)
		current = ancestor
	}
}

// chainIDs returns the ids of the documents in chain.
func chainIDs(chain []*Document) []string {
	ids := make([]string, 0, len(chain))
	for _, d := range chain {
		if id := d.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
