package card

import "context"

// Adapter projects internal cards into external documents for a format.
type Adapter struct {
	// Schema is the base schema. Card specific schema resources are applied
	// to it for every adaptation.
	Schema Schema

	// Privileged loads the unrestricted internal form of a card so that read
	// restrictions on the requested document cannot hide schema information.
	// It may be nil, in which case the requested document is used as is.
	Privileged Fetcher
}

// Adapt converts an internal card document into the external document for
// format. The input is not modified.
func (a *Adapter) Adapt(ctx context.Context, internal *Document, format Format) (*Document, error) {
	if internal == nil || internal.Data == nil || internal.Data.ID == "" {
		return nil, invalidCard("/data/id", "Cannot load card with missing id.")
	}
	internal = internal.Clone()
	id := internal.Data.ID

	privileged, err := a.privileged(ctx, internal)
	if err != nil {
		return nil, err
	}
	ancestors, err := includedAncestors(privileged)
	if err != nil {
		return nil, err
	}

	schemas, err := CardSchemas(ctx, a.Schema, privileged, nil)
	if err != nil {
		return nil, err
	}
	changes := make([]SchemaChange, 0, len(schemas))
	for _, r := range schemas {
		changes = append(changes, SchemaChange{ID: r.ID, Type: r.Type, Document: r})
	}
	schema, err := a.Schema.ApplyChanges(ctx, changes)
	if err != nil {
		return nil, err
	}

	shell := &Resource{
		Type:       TypeCards,
		ID:         id,
		Attributes: map[string]any{},
		Relationships: map[string]Relationship{
			RelModel: {Data: ToOne(internal.Data.Type, id)},
		},
		Meta: deepCopyMap(internal.Data.Meta),
	}
	if rel, ok := internal.Data.Relationships[RelFields]; ok {
		shell.Relationships[RelFields] = rel.Clone()
	}
	if rel, ok := privileged.Data.Relationships[RelAdoptedFrom]; ok {
		shell.Relationships[RelAdoptedFrom] = rel.Clone()
	}
	copyCardAssets(shell, privileged.Data, ancestors)

	model := modelResource(internal.Data)
	result := &Document{Data: shell, Included: []*Resource{}}
	if format == FormatIsolated {
		result.Included = append(result.Included, model)
		for _, inc := range internal.Included {
			if inc == nil || !schema.IsSchemaType(inc.Type) {
				continue
			}
			if owner, ok := CardID(inc.ID); ok && owner == id {
				result.Included = append(result.Included, inc)
			}
		}
	}

	fields := privileged.Data.FieldRefs()
	for _, ancestor := range ancestors {
		fields = append(fields, ancestor.FieldRefs()...)
	}
	for _, ref := range fields {
		name := ModelID(ref.ID)
		if name == "" {
			continue
		}
		field, ok := schema.Field(ref.ID)
		if !ok {
			continue
		}
		if !FormatHasField(field, format) {
			hideSummaryField(shell, name)
			continue
		}

		if !field.IsRelationship {
			if value, ok := model.Attribute(ref.ID); ok {
				shell.SetAttribute(name, value)
			}
			continue
		}

		linkage := model.Linkage(ref.ID)
		if !linkage.Present() {
			continue
		}
		shell.SetLinkage(name, linkage.Clone())
		adopted := false
		if owner, ok := CardID(ref.ID); !ok || owner != id {
			adopted = true
		}
		// Schema resources of an ancestor are not carried by the child.
		if adopted && linksSchema(schema, linkage) {
			continue
		}
		result.Included = append(result.Included, relatedIncluded(internal, linkage)...)
	}

	result.Included = UniqueResources(result.Included)
	return RemoveNamespacing(result), nil
}

// AdaptCollection adapts every card of coll for format. Resources that are
// not cards pass through unchanged. Included resources are deduplicated and
// never repeat a primary resource.
func (a *Adapter) AdaptCollection(ctx context.Context, coll *Collection, format Format) (*Collection, error) {
	if coll == nil {
		return &Collection{Data: []*Resource{}}, nil
	}

	data := make([]*Resource, 0, len(coll.Data))
	var included []*Resource
	for _, r := range coll.Data {
		if r == nil {
			continue
		}
		if !IsCard(r.Type, r.ID) {
			data = append(data, r.Clone())
			continue
		}
		doc, err := a.Adapt(ctx, &Document{Data: r, Included: coll.Included}, format)
		if err != nil {
			return nil, err
		}
		data = append(data, doc.Data)
		included = append(included, doc.Included...)
	}

	roots := make(map[string]bool, len(data))
	for _, r := range data {
		roots[r.Key()] = true
	}
	out := &Collection{Data: data, Meta: deepCopyMap(coll.Meta)}
	for _, r := range UniqueResources(included) {
		if IsCard(r.Type, r.ID) {
			r.Type = TypeCards
		}
		if roots[r.Key()] {
			continue
		}
		roots[r.Key()] = true
		out.Included = append(out.Included, r)
	}
	return out, nil
}

func (a *Adapter) privileged(ctx context.Context, internal *Document) (*Document, error) {
	if a.Privileged == nil {
		return internal, nil
	}
	doc, err := a.Privileged.FetchInternalCard(ctx, internal.Data.ID)
	if err != nil {
		if IsNotFound(err) {
			return internal, nil
		}
		return nil, err
	}
	if doc == nil || doc.Data == nil {
		return internal, nil
	}
	return doc.Clone(), nil
}

// includedAncestors walks the adoption chain of doc through its included
// resources, nearest ancestor first.
func includedAncestors(doc *Document) ([]*Resource, error) {
	var ancestors []*Resource
	visited := map[string]bool{doc.Data.ID: true}
	path := []string{doc.Data.ID}

	current := doc.Data
	for {
		next := current.AdoptedFromID()
		if next == "" {
			return ancestors, nil
		}
		if visited[next] {
			return nil, cyclicAdoption(path, next)
		}
		ancestor, ok := doc.FindIncluded(next, next)
		if !ok {
			return nil, invalidCard(pointer("data", "relationships", RelAdoptedFrom, "data"),
				"Couldn't find adopted card '%s' in the included resources of the card '%s'", next, doc.Data.ID)
		}
		visited[next] = true
		path = append(path, next)
		ancestors = append(ancestors, ancestor)
		current = ancestor
	}
}

// copyCardAssets copies browser assets and the metadata summary onto the
// shell. Missing assets are inherited from the nearest ancestor that has one;
// the summary is never inherited.
func copyCardAssets(shell, card *Resource, ancestors []*Resource) {
	for _, attr := range BrowserAssetFields {
		value, _ := card.Attribute(attr)
		for _, ancestor := range ancestors {
			if !isBlank(value) {
				break
			}
			value, _ = ancestor.Attribute(attr)
		}
		if value != nil {
			shell.SetAttribute(attr, deepCopyValue(value))
		}
	}
	if value, ok := card.Attribute(AttrMetadataSummary); ok {
		shell.SetAttribute(AttrMetadataSummary, deepCopyValue(value))
	}
}

// modelResource builds the card model included in the external document:
// card level attributes are removed and card linkages use the `cards` type.
func modelResource(data *Resource) *Resource {
	model := &Resource{
		Type:          data.ID,
		ID:            data.ID,
		Attributes:    map[string]any{},
		Relationships: map[string]Relationship{},
	}
	for name, value := range data.Attributes {
		if isBrowserAssetField(name) || name == AttrMetadataSummary || name == AttrEmbeddedMetadataSummary {
			continue
		}
		model.Attributes[name] = value
	}
	for name, rel := range data.Relationships {
		if name == RelFields || !rel.Data.Present() {
			continue
		}
		model.Relationships[name] = Relationship{Data: rel.Data.Map(func(i Identifier) (Identifier, bool) {
			if IsCard(i.Type, i.ID) {
				return Identifier{Type: TypeCards, ID: i.ID}, true
			}
			return i, true
		})}
	}
	return model
}

func hideSummaryField(shell *Resource, name string) {
	summary, ok := shell.Attributes[AttrMetadataSummary].(map[string]any)
	if !ok {
		return
	}
	delete(summary, name)
}

func linksSchema(oracle SchemaOracle, l *Linkage) bool {
	for _, i := range l.Identifiers() {
		if oracle.IsSchemaType(i.Type) {
			return true
		}
	}
	return false
}

// relatedIncluded returns the included resources of internal a relationship
// points at. Related cards bring along every card reachable from them.
func relatedIncluded(internal *Document, l *Linkage) []*Resource {
	refs := make(map[string]bool)
	for _, i := range l.Identifiers() {
		if i.Type == TypeCards {
			refs[Key(i.ID, i.ID)] = true
		} else {
			refs[i.Key()] = true
		}
	}

	var out []*Resource
	for _, inc := range internal.Included {
		if inc == nil || inc.ID == "" || !refs[inc.Key()] {
			continue
		}
		if !IsCard(inc.Type, inc.ID) {
			out = append(out, inc)
			continue
		}
		for _, embedded := range crawlEmbedded(internal, inc.ID, map[string]bool{}) {
			if summary, ok := embedded.Attribute(AttrEmbeddedMetadataSummary); ok && !isBlank(summary) {
				embedded.SetAttribute(AttrMetadataSummary, summary)
				delete(embedded.Attributes, AttrEmbeddedMetadataSummary)
			}
			out = append(out, embedded)
		}
	}
	return out
}

// crawlEmbedded collects the included card id and every included card
// reachable from it through relationships.
func crawlEmbedded(internal *Document, id string, visited map[string]bool) []*Resource {
	if visited[id] {
		return nil
	}
	card, ok := internal.FindIncluded(id, id)
	if !ok {
		return nil
	}
	visited[id] = true

	out := []*Resource{card}
	for _, name := range sortedKeys(card.Relationships) {
		for _, ref := range card.Relationships[name].Data.Identifiers() {
			if IsCard(ref.Type, ref.ID) {
				out = append(out, crawlEmbedded(internal, ref.ID, visited)...)
			}
		}
	}
	return out
}
