// Package card implements card identity, adoption, namespacing, validation and
// format adaptation over JSON:API shaped card documents.
package card

import "strings"

// Delim separates the parts of a composite card identifier.
const Delim = "::"

// Context is a decomposed composite identifier of the form
// repository::packageName::modelId. Absent parts are empty.
type Context struct {
	Repository  string
	PackageName string
	ModelID     string
}

// Decompose splits id on Delim. Parts beyond the third are ignored and an
// empty id yields an all-empty Context.
func Decompose(id string) Context {
	if id == "" {
		return Context{}
	}

	parts := strings.Split(id, Delim)
	var ctx Context
	ctx.Repository = parts[0]
	if len(parts) > 1 {
		ctx.PackageName = parts[1]
	}
	if len(parts) > 2 {
		ctx.ModelID = parts[2]
	}
	return ctx
}

// Compose joins the parts of ctx with Delim. Trailing empty parts are
// dropped; an empty part followed by a set one is kept.
func Compose(ctx Context) string {
	parts := []string{ctx.Repository, ctx.PackageName, ctx.ModelID}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, Delim)
}

// CardID returns the first two parts of id, or false when id has fewer than
// two parts. Empty parts are kept, so "a::" yields "a::".
func CardID(id string) (string, bool) {
	if partCount(id) < 2 {
		return "", false
	}
	parts := strings.SplitN(id, Delim, 3)
	return parts[0] + Delim + parts[1], true
}

// ModelID returns the member part of a namespaced id.
func ModelID(id string) string {
	return Decompose(id).ModelID
}

// IsCard reports whether a resource with the given type and id is a card:
// the id is non-empty, equal to the type, and has at least two parts.
func IsCard(typ, id string) bool {
	return id != "" && typ == id && partCount(id) > 1
}

// Namespace prefixes member with the owning card id.
func Namespace(cardID, member string) string {
	return cardID + Delim + member
}

// ValidatePathSegments checks that the repository and package name of a card
// id can each be used as a single directory name.
func ValidatePathSegments(id string) error {
	c := Decompose(id)
	for _, seg := range []string{c.Repository, c.PackageName} {
		if !safeSegment(seg) {
			return invalidCard("/data/id", "The card id '%s' cannot be used as a directory name", id)
		}
	}
	return nil
}

func safeSegment(seg string) bool {
	if seg == "" || seg == "." || seg == ".." {
		return false
	}
	return !strings.ContainsAny(seg, "/\\\x00")
}

func partCount(id string) int {
	if id == "" {
		return 0
	}
	return strings.Count(id, Delim) + 1
}
