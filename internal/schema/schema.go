// Package schema provides immutable schema snapshots that answer field
// metadata queries for card adaptation.
package schema

import (
	"context"
	"fmt"
	"sort"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// FieldTypeString is the plain string attribute field type.
const FieldTypeString = "@cardstack/core-types::string"

// Field types that hold relationships rather than attribute values.
const (
	FieldTypeBelongsTo = "@cardstack/core-types::belongs-to"
	FieldTypeHasMany   = "@cardstack/core-types::has-many"
)

// Types lists the resource types that define schema rather than card data.
var Types = []string{
	"content-types",
	"fields",
	"computed-fields",
	"constraints",
	"data-sources",
	"default-values",
	"grants",
	"groups",
	"plugin-configs",
	"input-assignments",
}

// Schema is a snapshot of field definitions. It is never modified after
// construction, so a single value may be shared between goroutines.
type Schema struct {
	types  map[string]bool
	fields map[string]card.FieldDescriptor
}

var _ card.Schema = (*Schema)(nil)

// New returns a schema that recognizes the built-in schema types and has no
// fields.
func New() *Schema {
	s := &Schema{
		types:  make(map[string]bool, len(Types)),
		fields: make(map[string]card.FieldDescriptor),
	}
	for _, t := range Types {
		s.types[t] = true
	}
	return s
}

// IsSchemaType reports whether typ is a schema definition type.
func (s *Schema) IsSchemaType(typ string) bool {
	return s.types[typ]
}

// Field returns the descriptor of a field or computed field by id.
func (s *Schema) Field(id string) (card.FieldDescriptor, bool) {
	f, ok := s.fields[id]
	return f, ok
}

// Fields returns the ids of all known fields, sorted.
func (s *Schema) Fields() []string {
	ids := make([]string, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplyChanges returns a new schema with changes applied. A change with a nil
// document removes the definition. Changes to schema types other than fields
// are accepted and carry no field metadata.
func (s *Schema) ApplyChanges(ctx context.Context, changes []card.SchemaChange) (card.Schema, error) {
	next := &Schema{
		types:  s.types,
		fields: make(map[string]card.FieldDescriptor, len(s.fields)+len(changes)),
	}
	for id, f := range s.fields {
		next.fields[id] = f
	}

	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.types[change.Type] {
			return nil, fmt.Errorf("schema: '%s/%s' is not a schema resource", change.Type, change.ID)
		}
		if change.Type != card.TypeFields && change.Type != card.TypeComputedFields {
			continue
		}
		if change.Document == nil {
			delete(next.fields, change.ID)
			continue
		}
		f, err := describe(change)
		if err != nil {
			return nil, err
		}
		next.fields[change.ID] = f
	}
	return next, nil
}

func describe(change card.SchemaChange) (card.FieldDescriptor, error) {
	f := card.FieldDescriptor{ID: change.ID, Type: change.Type}
	attrs := change.Document.Attributes

	if v, ok := attrs["field-type"]; ok && v != nil {
		ft, ok := v.(string)
		if !ok {
			return f, fmt.Errorf("schema: field '%s' has a non-string field-type", change.ID)
		}
		f.FieldType = ft
	}
	f.IsRelationship = f.FieldType == FieldTypeBelongsTo || f.FieldType == FieldTypeHasMany
	f.IsMetadata = truthy(attrs["is-metadata"])
	f.NeededWhenEmbedded = truthy(attrs[card.AttrNeededWhenEmbedded])
	return f, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	}
	return v != nil
}
