package card

import (
	"context"
	"strings"
)

var baseDefaultIncludes = []string{
	"fields",
	"fields.constraints",
	"fields.related-types",
	"fields.related-types.fields",
}

// ContentType is the schema derived for a card from its own fields and the
// fields it inherits.
type ContentType struct {
	ID              string
	DefaultIncludes []string
	Fields          []Identifier
	Adopted         []*Document
}

// Resource renders the content type as a `content-types` resource.
func (c *ContentType) Resource() *Resource {
	includes := make([]any, len(c.DefaultIncludes))
	for i, p := range c.DefaultIncludes {
		includes[i] = p
	}
	return &Resource{
		Type:       TypeContentTypes,
		ID:         c.ID,
		Attributes: map[string]any{AttrDefaultIncludes: includes},
		Relationships: map[string]Relationship{
			RelFields: {Data: ToMany(append([]Identifier(nil), c.Fields...)...)},
		},
	}
}

// DeriveContentType synthesizes the content type of a card. Inherited fields
// and default includes for the adoption chain and traversable relationships
// are only computed when fetch is non-nil, which is the case when writing to
// the index.
func DeriveContentType(ctx context.Context, doc *Document, fetch Fetcher) (*ContentType, error) {
	id, ok := CardID(doc.ID())
	if !ok {
		return nil, invalidCard("/data/id", "the card id '%s' is not a valid card id", doc.ID())
	}

	fields := []Identifier{
		{Type: TypeFields, ID: RelFields},
		{Type: TypeFields, ID: RelAdoptedFrom},
	}
	for _, f := range BrowserAssetFields {
		fields = append(fields, Identifier{Type: TypeFields, ID: f})
	}
	fields = append(fields, doc.Data.FieldRefs()...)
	fields = append(fields,
		Identifier{Type: TypeComputedFields, ID: AttrMetadataSummary},
		Identifier{Type: TypeComputedFields, ID: AttrEmbeddedMetadataSummary},
	)

	includes := newPathSet(baseDefaultIncludes...)
	ct := &ContentType{ID: id}

	if fetch != nil {
		chain, err := ResolveChain(ctx, doc, fetch)
		if err != nil {
			return nil, err
		}
		ct.Adopted = chain

		for depth := range chain {
			prefix := strings.Repeat(RelAdoptedFrom+".", depth) + RelAdoptedFrom
			for _, p := range baseDefaultIncludes {
				includes.add(prefix + "." + p)
			}
			includes.add(prefix)
		}
		for _, ancestor := range chain {
			fields = append(fields, ancestor.Data.FieldRefs()...)
		}

		w := &relationshipWalker{fetch: fetch, paths: includes, visiting: map[string]bool{}}
		if err := w.walk(ctx, append([]*Document{doc}, chain...), FormatIsolated, ""); err != nil {
			return nil, err
		}
	}

	ct.Fields = fields
	ct.DefaultIncludes = includes.list()
	return ct, nil
}

// TraversableRelationships returns the relationship include paths reachable
// from cards: every populated relationship field visible in format, followed
// into related cards at the embedded format.
func TraversableRelationships(ctx context.Context, cards []*Document, fetch Fetcher, format Format) ([]string, error) {
	w := &relationshipWalker{fetch: fetch, paths: newPathSet(), visiting: map[string]bool{}}
	if err := w.walk(ctx, cards, format, ""); err != nil {
		return nil, err
	}
	return w.paths.list(), nil
}

type relationshipWalker struct {
	fetch    Fetcher
	paths    *pathSet
	visiting map[string]bool
}

func (w *relationshipWalker) walk(ctx context.Context, cards []*Document, format Format, parent string) error {
	for _, card := range cards {
		if card == nil || card.Data == nil {
			continue
		}
		cardID := card.Data.ID
		if w.visiting[cardID] {
			continue
		}
		w.visiting[cardID] = true

		for _, ref := range card.Data.FieldRefs() {
			if !followable(card, ref, format) {
				continue
			}
			linkage := card.Data.Linkage(ref.ID)
			if !linkage.Present() {
				continue
			}

			path := ref.ID
			if parent != "" {
				path = parent + "." + ref.ID
			}
			w.paths.add(path)

			for _, target := range linkage.Identifiers() {
				if !IsCard(target.Type, target.ID) {
					continue
				}
				if err := w.follow(ctx, target.ID, path); err != nil {
					return err
				}
			}
		}
		delete(w.visiting, cardID)
	}
	return nil
}

func (w *relationshipWalker) follow(ctx context.Context, id, path string) error {
	if w.visiting[id] {
		return nil
	}
	related, err := w.fetch.FetchInternalCard(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	if related == nil || related.Data == nil {
		return nil
	}
	chain, err := ResolveChain(ctx, related, w.fetch)
	if err != nil {
		return err
	}
	return w.walk(ctx, append([]*Document{related}, chain...), FormatEmbedded, path)
}

// followable reports whether the field ref of card is defined in the card's
// included resources and visible in format.
func followable(card *Document, ref Identifier, format Format) bool {
	field, ok := card.FindIncluded(ref.Type, ref.ID)
	if !ok {
		return false
	}
	if format == FormatIsolated {
		return true
	}
	if owner, ok := CardID(field.ID); ok && owner == card.Data.ID {
		return true
	}
	needed, _ := field.Attribute(AttrNeededWhenEmbedded)
	return !isBlank(needed)
}

// CardSchemas returns the schema resources of a card: its own schema typed
// included resources, its derived content type and the schema resources of
// every adopted card.
func CardSchemas(ctx context.Context, oracle SchemaOracle, doc *Document, fetch Fetcher) ([]*Resource, error) {
	if doc == nil || doc.ID() == "" {
		return nil, nil
	}

	var resources []*Resource
	for _, inc := range doc.Included {
		if inc != nil && oracle.IsSchemaType(inc.Type) {
			resources = append(resources, inc)
		}
	}

	ct, err := DeriveContentType(ctx, doc, fetch)
	if err != nil {
		return nil, err
	}
	resources = append(resources, ct.Resource())

	for _, adopted := range ct.Adopted {
		for _, inc := range adopted.Included {
			if inc != nil && oracle.IsSchemaType(inc.Type) {
				resources = append(resources, inc)
			}
		}
	}
	return UniqueResources(resources), nil
}

// pathSet is an insertion ordered set of include paths.
type pathSet struct {
	order []string
	seen  map[string]struct{}
}

func newPathSet(paths ...string) *pathSet {
	s := &pathSet{seen: make(map[string]struct{})}
	for _, p := range paths {
		s.add(p)
	}
	return s
}

func (s *pathSet) add(p string) {
	if _, ok := s.seen[p]; ok {
		return
	}
	s.seen[p] = struct{}{}
	s.order = append(s.order, p)
}

func (s *pathSet) list() []string {
	return append([]string(nil), s.order...)
}
