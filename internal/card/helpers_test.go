package card

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type testOracle map[string]bool

func (o testOracle) IsSchemaType(typ string) bool { return o[typ] }

var oracle = testOracle{
	TypeFields:         true,
	TypeComputedFields: true,
	TypeContentTypes:   true,
	"constraints":      true,
}

func mustDoc(t *testing.T, raw string) *Document {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

// memFetcher serves documents by id and counts lookups.
type memFetcher struct {
	docs  map[string]*Document
	calls int
}

func newMemFetcher(docs ...*Document) *memFetcher {
	f := &memFetcher{docs: make(map[string]*Document)}
	for _, d := range docs {
		f.docs[d.ID()] = d
	}
	return f
}

func (f *memFetcher) FetchInternalCard(_ context.Context, id string) (*Document, error) {
	f.calls++
	doc, ok := f.docs[id]
	if !ok {
		return nil, NotFound(id)
	}
	return doc, nil
}

func internalCard(id, adoptedFrom string, fields ...string) *Document {
	data := &Resource{Type: id, ID: id}
	refs := make([]Identifier, 0, len(fields))
	for _, f := range fields {
		refs = append(refs, Identifier{Type: TypeFields, ID: Namespace(id, f)})
	}
	data.SetLinkage(RelFields, ToMany(refs...))
	if adoptedFrom != "" {
		data.SetLinkage(RelAdoptedFrom, ToOne(adoptedFrom, adoptedFrom))
	}
	doc := &Document{Data: data}
	for _, ref := range refs {
		doc.Included = append(doc.Included, &Resource{Type: ref.Type, ID: ref.ID})
	}
	return doc
}
