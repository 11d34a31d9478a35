package card

import "context"

// SchemaOracle tells schema definition types apart from card data.
type SchemaOracle interface {
	IsSchemaType(typ string) bool
}

// FieldDescriptor is the metadata the adapter needs about a field.
type FieldDescriptor struct {
	ID                 string
	Type               string
	FieldType          string
	IsMetadata         bool
	IsRelationship     bool
	NeededWhenEmbedded bool
}

// SchemaChange registers a schema resource with a schema.
type SchemaChange struct {
	ID       string
	Type     string
	Document *Resource
}

// Schema answers field metadata queries. ApplyChanges returns a new schema
// and leaves the receiver untouched.
type Schema interface {
	SchemaOracle
	Field(id string) (FieldDescriptor, bool)
	ApplyChanges(ctx context.Context, changes []SchemaChange) (Schema, error)
}

// Kind is the variant of a resource inside a card document.
type Kind int

const (
	// KindShell is the external `cards` envelope.
	KindShell Kind = iota + 1
	// KindCard is a card model: its type equals its id.
	KindCard
	// KindSchema is a field, constraint or content type definition.
	KindSchema
	// KindData is any other authored resource.
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindCard:
		return "card"
	case KindSchema:
		return "schema"
	case KindData:
		return "data"
	}
	return "unknown"
}

// Classify returns the variant of r.
func Classify(oracle SchemaOracle, r *Resource) Kind {
	switch {
	case r.Type == TypeCards:
		return KindShell
	case IsCard(r.Type, r.ID):
		return KindCard
	case oracle.IsSchemaType(r.Type):
		return KindSchema
	default:
		return KindData
	}
}

// Format is a consumer facing projection of a card.
type Format string

const (
	// FormatIsolated is the full detail projection.
	FormatIsolated Format = "isolated"
	// FormatEmbedded is the summary projection.
	FormatEmbedded Format = "embedded"
)

// ParseFormat validates a format name. The empty string means isolated.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatIsolated:
		return FormatIsolated, nil
	case FormatEmbedded:
		return FormatEmbedded, nil
	}
	return "", invalidCard("", "unknown card format '%s'", s)
}

// FormatHasField reports whether a field is shown in the given format: it must
// be metadata, and for the embedded format also needed when embedded.
func FormatHasField(field FieldDescriptor, format Format) bool {
	if !field.IsMetadata {
		return false
	}
	if format == FormatEmbedded && !field.NeededWhenEmbedded {
		return false
	}
	return true
}
