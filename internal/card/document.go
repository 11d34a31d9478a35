package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Resource and relationship names that are part of the stored document
// format. They must not change.
const (
	TypeCards          = "cards"
	TypeFields         = "fields"
	TypeComputedFields = "computed-fields"
	TypeContentTypes   = "content-types"

	RelFields      = "fields"
	RelAdoptedFrom = "adopted-from"
	RelModel       = "model"

	AttrMetadataSummary         = "metadata-summary"
	AttrEmbeddedMetadataSummary = "embedded-" + AttrMetadataSummary
	AttrDefaultIncludes         = "default-includes"
	AttrNeededWhenEmbedded      = "needed-when-embedded"
)

// BrowserAssetFields are the card attributes holding browser assets.
var BrowserAssetFields = []string{
	"isolated-template",
	"isolated-js",
	"isolated-css",
	"embedded-template",
	"embedded-js",
	"embedded-css",
}

// Identifier is a JSON:API resource identifier object.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Key returns the type/id pair used for resource identity.
func (i Identifier) Key() string {
	return Key(i.Type, i.ID)
}

// Key joins a type and id into the form used to match and deduplicate
// resources.
func Key(typ, id string) string {
	return typ + "/" + id
}

// Linkage is the data member of a relationship: null, a single identifier or
// a list of identifiers.
type Linkage struct {
	One    *Identifier
	Many   []Identifier
	IsMany bool
}

// ToOne builds a single-identifier linkage.
func ToOne(typ, id string) *Linkage {
	return &Linkage{One: &Identifier{Type: typ, ID: id}}
}

// ToMany builds a list linkage.
func ToMany(ids ...Identifier) *Linkage {
	if ids == nil {
		ids = []Identifier{}
	}
	return &Linkage{Many: ids, IsMany: true}
}

// Present reports whether the linkage carries data. An empty list is present,
// null is not.
func (l *Linkage) Present() bool {
	return l != nil && (l.IsMany || l.One != nil)
}

// Identifiers returns the identifiers of the linkage in order.
func (l *Linkage) Identifiers() []Identifier {
	if l == nil {
		return nil
	}
	if l.IsMany {
		return l.Many
	}
	if l.One != nil {
		return []Identifier{*l.One}
	}
	return nil
}

// Map returns a new linkage with fn applied to every identifier. Identifiers
// for which fn returns false are dropped; a dropped single identifier yields
// a null linkage.
func (l *Linkage) Map(fn func(Identifier) (Identifier, bool)) *Linkage {
	if l == nil {
		return nil
	}
	if l.IsMany {
		out := make([]Identifier, 0, len(l.Many))
		for _, i := range l.Many {
			if mapped, ok := fn(i); ok {
				out = append(out, mapped)
			}
		}
		return ToMany(out...)
	}
	if l.One == nil {
		return &Linkage{}
	}
	mapped, ok := fn(*l.One)
	if !ok {
		return &Linkage{}
	}
	return &Linkage{One: &mapped}
}

// Clone returns a copy of the linkage.
func (l *Linkage) Clone() *Linkage {
	return l.Map(func(i Identifier) (Identifier, bool) { return i, true })
}

func (l *Linkage) MarshalJSON() ([]byte, error) {
	if l.IsMany {
		ids := l.Many
		if ids == nil {
			ids = []Identifier{}
		}
		return json.Marshal(ids)
	}
	if l.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.One)
}

func (l *Linkage) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*l = Linkage{}
	case len(trimmed) > 0 && trimmed[0] == '[':
		var ids []Identifier
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return err
		}
		*l = *ToMany(ids...)
	case len(trimmed) > 0 && trimmed[0] == '{':
		var id Identifier
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*l = Linkage{One: &id}
	default:
		return fmt.Errorf("invalid resource linkage: %s", trimmed)
	}
	return nil
}

// Relationship is a JSON:API relationship object.
type Relationship struct {
	Data  *Linkage       `json:"-"`
	Links map[string]any `json:"links,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

func (r Relationship) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	if r.Data != nil {
		out["data"] = r.Data
	}
	if len(r.Links) > 0 {
		out["links"] = r.Links
	}
	if len(r.Meta) > 0 {
		out["meta"] = r.Meta
	}
	return json.Marshal(out)
}

func (r *Relationship) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data  json.RawMessage `json:"data"`
		Links map[string]any  `json:"links"`
		Meta  map[string]any  `json:"meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Relationship{Links: raw.Links, Meta: raw.Meta}
	if raw.Data != nil {
		r.Data = &Linkage{}
		if err := r.Data.UnmarshalJSON(raw.Data); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the relationship.
func (r Relationship) Clone() Relationship {
	return Relationship{
		Data:  r.Data.Clone(),
		Links: deepCopyMap(r.Links),
		Meta:  deepCopyMap(r.Meta),
	}
}

// Resource is a JSON:API resource object.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id,omitempty"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
	Meta          map[string]any          `json:"meta,omitempty"`
}

// Identifier returns the resource identifier of r.
func (r *Resource) Identifier() Identifier {
	return Identifier{Type: r.Type, ID: r.ID}
}

// Key returns the type/id identity of r.
func (r *Resource) Key() string {
	return Key(r.Type, r.ID)
}

// Linkage returns the data of the named relationship, or nil.
func (r *Resource) Linkage(name string) *Linkage {
	if r == nil || r.Relationships == nil {
		return nil
	}
	rel, ok := r.Relationships[name]
	if !ok {
		return nil
	}
	return rel.Data
}

// SetLinkage sets the data of the named relationship, keeping its links and
// meta.
func (r *Resource) SetLinkage(name string, l *Linkage) {
	if r.Relationships == nil {
		r.Relationships = make(map[string]Relationship)
	}
	rel := r.Relationships[name]
	rel.Data = l
	r.Relationships[name] = rel
}

// AdoptedFromID returns the id of the card r adopts from, if any.
func (r *Resource) AdoptedFromID() string {
	l := r.Linkage(RelAdoptedFrom)
	if l == nil || l.IsMany || l.One == nil {
		return ""
	}
	return l.One.ID
}

// FieldRefs returns the identifiers listed in the fields relationship.
func (r *Resource) FieldRefs() []Identifier {
	return r.Linkage(RelFields).Identifiers()
}

// Attribute returns the named attribute and whether it was set.
func (r *Resource) Attribute(name string) (any, bool) {
	if r == nil || r.Attributes == nil {
		return nil, false
	}
	v, ok := r.Attributes[name]
	return v, ok
}

// SetAttribute sets the named attribute.
func (r *Resource) SetAttribute(name string, value any) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Attributes[name] = value
}

// Clone returns a deep copy of r.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	out := &Resource{
		Type:       r.Type,
		ID:         r.ID,
		Attributes: deepCopyMap(r.Attributes),
		Meta:       deepCopyMap(r.Meta),
	}
	if r.Relationships != nil {
		out.Relationships = make(map[string]Relationship, len(r.Relationships))
		for name, rel := range r.Relationships {
			out.Relationships[name] = rel.Clone()
		}
	}
	return out
}

// Document is a single-resource JSON:API document.
type Document struct {
	Data     *Resource      `json:"data"`
	Included []*Resource    `json:"included,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// ID returns the id of the primary resource.
func (d *Document) ID() string {
	if d == nil || d.Data == nil {
		return ""
	}
	return d.Data.ID
}

// Resources returns the primary resource followed by the included ones.
func (d *Document) Resources() []*Resource {
	out := make([]*Resource, 0, len(d.Included)+1)
	if d.Data != nil {
		out = append(out, d.Data)
	}
	return append(out, d.Included...)
}

// FindIncluded returns the included resource with the given type and id.
func (d *Document) FindIncluded(typ, id string) (*Resource, bool) {
	if d == nil {
		return nil, false
	}
	key := Key(typ, id)
	for _, r := range d.Included {
		if r != nil && r.Key() == key {
			return r, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Data: d.Data.Clone(), Meta: deepCopyMap(d.Meta)}
	if d.Included != nil {
		out.Included = make([]*Resource, len(d.Included))
		for i, r := range d.Included {
			out.Included[i] = r.Clone()
		}
	}
	return out
}

// Collection is a multi-resource JSON:API document.
type Collection struct {
	Data     []*Resource    `json:"data"`
	Included []*Resource    `json:"included,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// UniqueResources deduplicates resources by type/id keeping the first one.
func UniqueResources(resources []*Resource) []*Resource {
	seen := make(map[string]struct{}, len(resources))
	out := make([]*Resource, 0, len(resources))
	for _, r := range resources {
		if r == nil {
			continue
		}
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out
}

// isBlank reports whether an attribute value counts as empty: absent, null,
// empty string, false or zero.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	}
	return false
}

func isBrowserAssetField(name string) bool {
	for _, f := range BrowserAssetFields {
		if f == name {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
