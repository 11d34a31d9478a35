package card

import (
	"context"
	"strings"
)

// ValidateInternal checks the invariants of an internal card document. The
// fetcher resolves the adoption chain so that resources namespaced under an
// ancestor are accepted in included.
func ValidateInternal(ctx context.Context, oracle SchemaOracle, internal *Document, fetch Fetcher) error {
	if internal == nil || internal.Data == nil {
		return invalidCard("/data", "the card document has no primary data")
	}
	id := internal.Data.ID
	typ := internal.Data.Type
	if id == "" {
		return invalidCard("/data/id", "The card ID must be supplied in the card document")
	}
	if typ == "" {
		return invalidCard("/data/type", "The card type must be supplied in the card document")
	}
	if id != typ {
		return invalidCard("/data/id", "The card '%s' has a card model content-type that does not match its id: '%s'", id, typ)
	}

	for i, field := range internal.Data.FieldRefs() {
		if !strings.Contains(field.ID, id) {
			return invalidCard(pointer("data", "relationships", RelFields, "data", i),
				"The card '%s' uses a foreign field '%s/%s'", id, field.Type, field.ID)
		}
	}

	own := &ownership{ctx: ctx, doc: internal, fetch: fetch}

	for _, rel := range sortedKeys(internal.Data.Relationships) {
		if rel == RelFields {
			continue
		}
		linkage := internal.Data.Relationships[rel].Data
		if !linkage.Present() {
			continue
		}
		for i, ref := range linkage.Identifiers() {
			foreign, err := foreignLinkage(oracle, own, ref)
			if err != nil {
				return err
			}
			if !foreign {
				continue
			}
			loc := pointer("data", "relationships", rel, "data")
			if linkage.IsMany {
				loc = pointer("data", "relationships", rel, "data", i)
			}
			return invalidCard(loc, "The card '%s' has a relationship to a foreign internal model '%s/%s'", id, ref.Type, ref.ID)
		}
	}

	for i, inc := range internal.Included {
		if inc == nil || IsCard(inc.Type, inc.ID) || inc.ID == "" {
			continue
		}
		foreignType := !oracle.IsSchemaType(inc.Type) && !strings.Contains(inc.Type, id)
		ownedID, err := own.owns(inc.ID)
		if err != nil {
			return err
		}
		if foreignType || !ownedID {
			return invalidCard(pointer("included", i),
				"The card '%s' contains included foreign internal models '%s/%s'", id, inc.Type, inc.ID)
		}
	}
	return nil
}

// ownership answers whether an id belongs to a card or one of its ancestors.
// The adoption chain is only resolved once an id is not the card's own.
type ownership struct {
	ctx       context.Context
	doc       *Document
	fetch     Fetcher
	ancestors []string
	resolved  bool
}

func (o *ownership) owns(s string) (bool, error) {
	if strings.Contains(s, o.doc.Data.ID) {
		return true, nil
	}
	if !o.resolved {
		chain, err := ResolveChain(o.ctx, o.doc, o.fetch)
		if err != nil {
			return false, err
		}
		o.ancestors = chainIDs(chain)
		o.resolved = true
	}
	return containsAny(s, o.ancestors), nil
}

// foreignLinkage reports whether a relationship target is neither a card nor
// a resource owned by the card or its ancestors. Only two part ids count as
// cards; a namespaced model of another card is foreign.
func foreignLinkage(oracle SchemaOracle, own *ownership, ref Identifier) (bool, error) {
	if cardID, ok := CardID(ref.ID); ok && cardID == ref.ID && IsCard(ref.Type, ref.ID) {
		return false, nil
	}
	if !oracle.IsSchemaType(ref.Type) {
		ownedType, err := own.owns(ref.Type)
		if err != nil || !ownedType {
			return true, err
		}
	}
	ownedID, err := own.owns(ref.ID)
	return !ownedID, err
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ValidateExternal checks the invariants of an external card document.
func ValidateExternal(external *Document) error {
	if external == nil || external.Data == nil {
		return invalidCard("/data", "the card document has no primary data")
	}
	id := external.Data.ID
	if id == "" {
		return invalidCard("/data/id", "The card ID must be supplied in the card document")
	}
	if external.Data.Type != TypeCards {
		return invalidCard("/data/type", "The document type for card '%s' is not 'cards', rather it is '%s'", id, external.Data.Type)
	}

	const modelPointer = "/data/relationships/model/data"
	model := external.Data.Linkage(RelModel)
	if model == nil || model.IsMany || model.One == nil {
		return invalidCard(modelPointer, "The card 'cards/%s' is missing its card model '%s/%s'.", id, id, id)
	}
	if model.One.Type != id || model.One.ID != id {
		return invalidCard(modelPointer, "For the card '%s', the card model does not match the card id. The card model is '%s/%s'", id, model.One.Type, model.One.ID)
	}
	if _, ok := external.FindIncluded(id, id); !ok {
		return invalidCard(modelPointer, "The specified card model '%s/%s' is missing for card '%s'", id, id, id)
	}
	return nil
}
