package card

import (
	"context"
)

// ApplyNamespacing converts an external card document into the namespaced
// identifier space used for storage. The document is not modified.
//
// Attribute and relationship keys are namespaced under the card that
// declares the field, which may be an ancestor. Keys whose field is no longer
// declared anywhere in the adoption chain are dropped. Ancestors that cannot
// be found end the chain.
func ApplyNamespacing(ctx context.Context, oracle SchemaOracle, external *Document, fetch Fetcher) (*Document, error) {
	id, ok := CardID(external.ID())
	if !ok {
		return nil, invalidCard("/data/id", "the card id '%s' is not a valid card id", external.ID())
	}

	var chain []*Document
	if fetch != nil {
		var err error
		chain, err = ResolveChain(ctx, external, IgnoreNotFound(fetch))
		if err != nil {
			return nil, err
		}
	}
	cards := append([]*Document{external}, chain...)

	result := external.Clone()
	for _, resource := range result.Resources() {
		namespaceResource(oracle, id, cards, resource)
	}
	return result, nil
}

func namespaceResource(oracle SchemaOracle, id string, cards []*Document, resource *Resource) {
	kind := Classify(oracle, resource)

	if kind == KindSchema || kind == KindData {
		if kind == KindData {
			resource.Type = Namespace(id, resource.Type)
		}
		resource.ID = Namespace(id, resource.ID)
	}

	if kind == KindData || kind == KindCard {
		attrs := make(map[string]any, len(resource.Attributes))
		for field, value := range resource.Attributes {
			if name := namespacedResourceID(cards, field, ""); name != "" {
				attrs[name] = value
			}
		}
		if resource.Attributes != nil {
			resource.Attributes = attrs
		}
	}

	if resource.Relationships == nil {
		return
	}

	prefix := id
	if kind == KindShell {
		prefix = resource.ID
	}
	rels := make(map[string]Relationship, len(resource.Relationships))
	for field, rel := range resource.Relationships {
		if kind == KindShell && field == RelModel {
			rels[field] = rel
			continue
		}

		name := field
		if kind != KindSchema && kind != KindShell && field != RelAdoptedFrom {
			name = namespacedResourceID(cards, field, "")
		}
		if name == "" {
			continue
		}

		rel.Data = rel.Data.Map(func(i Identifier) (Identifier, bool) {
			return namespaceLinkage(oracle, cards, prefix, kind, i)
		})
		rels[name] = rel
	}
	resource.Relationships = rels
}

func namespaceLinkage(oracle SchemaOracle, cards []*Document, prefix string, owner Kind, i Identifier) (Identifier, bool) {
	if i.Type == TypeCards {
		return i, true
	}
	if !oracle.IsSchemaType(i.Type) {
		return Identifier{Type: Namespace(prefix, i.Type), ID: Namespace(prefix, i.ID)}, true
	}
	if owner == KindShell {
		return Identifier{Type: i.Type, ID: Namespace(prefix, i.ID)}, true
	}
	nsID := namespacedResourceID(cards, i.ID, i.Type)
	if nsID == "" {
		return Identifier{}, false
	}
	return Identifier{Type: i.Type, ID: nsID}, true
}

// namespacedResourceID finds the card that declares member and returns member
// namespaced under it. With a type, member is matched against the included
// resources of each card; without one, against each card's fields. Cards are
// searched in order, so the card itself wins over its ancestors. An empty
// string means no card declares member.
func namespacedResourceID(cards []*Document, member, typ string) string {
	for _, card := range cards {
		if card == nil || card.Data == nil {
			continue
		}
		if typ != "" {
			want := Key(typ, member)
			for _, inc := range card.Included {
				if inc == nil || inc.ID == "" {
					continue
				}
				local := ModelID(inc.ID)
				if local == "" {
					local = inc.ID
				}
				if Key(inc.Type, local) == want {
					return Namespace(card.Data.ID, member)
				}
			}
			continue
		}
		for _, ref := range card.Data.FieldRefs() {
			local := ModelID(ref.ID)
			if local == "" {
				local = ref.ID
			}
			if local == member {
				return Namespace(card.Data.ID, member)
			}
		}
	}
	return ""
}

// RemoveNamespacing converts a namespaced document back to external
// identifiers. Cards other than the primary one collapse to the generic
// `cards` type. The document is not modified.
func RemoveNamespacing(internal *Document) *Document {
	id := internal.ID()
	if id == "" {
		return internal.Clone()
	}

	result := internal.Clone()
	for _, resource := range result.Resources() {
		stripResource(id, resource)
	}
	return result
}

func stripResource(rootID string, resource *Resource) {
	if resource.Type != TypeCards && !IsCard(resource.Type, resource.ID) {
		resource.Type = stripMember(resource.Type)
		resource.ID = stripMember(resource.ID)
	}
	if IsCard(resource.Type, resource.ID) && resource.ID != rootID {
		resource.Type = TypeCards
	}

	if resource.Attributes != nil {
		attrs := make(map[string]any, len(resource.Attributes))
		for field, value := range resource.Attributes {
			if isBrowserAssetField(field) || field == AttrMetadataSummary {
				attrs[field] = value
				continue
			}
			if name := ModelID(field); name != "" {
				attrs[name] = value
			} else {
				attrs[field] = value
			}
		}
		resource.Attributes = attrs
	}

	if resource.Relationships == nil {
		return
	}
	rels := make(map[string]Relationship, len(resource.Relationships))
	for field, rel := range resource.Relationships {
		if field == RelModel && resource.Type == TypeCards {
			rels[field] = rel
			continue
		}
		name := ModelID(field)
		if name == "" {
			name = field
		}
		rel.Data = rel.Data.Map(stripLinkage)
		rels[name] = rel
	}
	resource.Relationships = rels
}

func stripLinkage(i Identifier) (Identifier, bool) {
	typ := i.Type
	if IsCard(i.Type, i.ID) {
		typ = TypeCards
	}
	if typ == TypeCards {
		return Identifier{Type: typ, ID: i.ID}, true
	}
	return Identifier{Type: stripMember(typ), ID: stripMember(i.ID)}, true
}

// stripMember returns the member part of a namespaced id, or the id itself
// when it is not namespaced.
func stripMember(id string) string {
	if _, ok := CardID(id); ok {
		return ModelID(id)
	}
	return id
}
