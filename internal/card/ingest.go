package card

import (
	"context"
	"strings"
)

// GenerateInternal converts an external card document into its internal
// storage form: the namespaced model becomes the primary resource and carries
// the shell's fields, adoption link, version and browser assets. Only included
// resources owned by the card are kept.
func GenerateInternal(ctx context.Context, oracle SchemaOracle, external *Document, fetch Fetcher) (*Document, error) {
	if err := ValidateExternal(external); err != nil {
		return nil, err
	}
	id := external.Data.ID

	namespaced, err := ApplyNamespacing(ctx, oracle, external, fetch)
	if err != nil {
		return nil, err
	}

	found, ok := namespaced.FindIncluded(id, id)
	if !ok {
		return nil, invalidCard("/data/relationships/model/data", "The card 'cards/%s' is missing its card model '%s/%s'.", id, id, id)
	}
	model := found.Clone()
	shell := namespaced.Data

	model.SetLinkage(RelFields, ToMany(shell.FieldRefs()...))
	if adopted := shell.AdoptedFromID(); adopted != "" {
		model.SetLinkage(RelAdoptedFrom, ToOne(adopted, adopted))
	}
	if version, ok := shell.Meta["version"]; ok && version != nil {
		if model.Meta == nil {
			model.Meta = make(map[string]any)
		}
		model.Meta["version"] = version
	}
	for _, field := range append(append([]string(nil), BrowserAssetFields...), AttrMetadataSummary) {
		value, _ := shell.Attribute(field)
		if isBlank(value) {
			continue
		}
		model.SetAttribute(field, deepCopyValue(value))
	}

	included := make([]*Resource, 0, len(namespaced.Included))
	for _, inc := range namespaced.Included {
		if inc == nil || inc.Key() == model.Key() || !strings.Contains(inc.ID, id) {
			continue
		}
		included = append(included, inc.Clone())
	}

	for _, resource := range append(included[:len(included):len(included)], model) {
		if resource.Type == TypeCards {
			resource.Type = resource.ID
		}
		for name, rel := range resource.Relationships {
			rel.Data = rel.Data.Map(func(i Identifier) (Identifier, bool) {
				if i.Type == TypeCards {
					return Identifier{Type: i.ID, ID: i.ID}, true
				}
				return i, true
			})
			resource.Relationships[name] = rel
		}
	}

	return &Document{Data: model, Included: included}, nil
}
