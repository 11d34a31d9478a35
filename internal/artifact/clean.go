package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// File names written for every card.
const (
	CardFile    = "card.json"
	PackageFile = "package.json"
)

// CleanCard returns the part of an internal card that goes into its
// artifacts. Computed field values, summaries, meta and null members are
// removed and included resources are sorted by type and id.
func CleanCard(internal *card.Document) *card.Document {
	doc := internal.Clone()
	doc.Meta = nil
	data := doc.Data
	data.Meta = nil

	computed := make(map[string]bool)
	for _, ref := range data.FieldRefs() {
		if ref.Type == card.TypeComputedFields {
			computed[ref.ID] = true
		}
	}
	for name, value := range data.Attributes {
		if computed[name] || value == nil {
			delete(data.Attributes, name)
		}
	}
	delete(data.Attributes, card.AttrMetadataSummary)
	delete(data.Attributes, card.AttrEmbeddedMetadataSummary)
	for name, rel := range data.Relationships {
		if computed[name] || !rel.Data.Present() {
			delete(data.Relationships, name)
		}
	}

	sort.SliceStable(doc.Included, func(i, j int) bool {
		return doc.Included[i].Key() < doc.Included[j].Key()
	})
	return doc
}

// Hash returns the hex SHA-256 of the canonical JSON form of doc.
func Hash(doc *card.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal card: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize card: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

type packageJSON struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// Files renders the artifact files of a clean card. Browser assets without
// content map to nil so that sinks remove any previous file.
func Files(clean *card.Document) (map[string][]byte, error) {
	id := clean.ID()
	cardJSON, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal card: %w", err)
	}
	pkg, err := json.MarshalIndent(packageJSON{
		Name:             card.Decompose(id).PackageName,
		Version:          "0.0.0",
		PeerDependencies: map[string]string{"@glimmer/component": "*"},
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal package: %w", err)
	}

	files := map[string][]byte{
		CardFile:    cardJSON,
		PackageFile: pkg,
	}
	for _, field := range card.BrowserAssetFields {
		name := AssetFile(field)
		content, _ := clean.Data.Attributes[field].(string)
		content = strings.TrimSpace(content)
		if content == "" {
			files[name] = nil
			continue
		}
		files[name] = []byte(content)
	}
	return files, nil
}

// AssetFile returns the file name of a browser asset attribute, for example
// isolated-template -> isolated.hbs and embedded-css -> embedded.css.
func AssetFile(field string) string {
	format, ext, _ := strings.Cut(field, "-")
	if ext == "template" {
		ext = "hbs"
	}
	return format + "." + ext
}

// Dir returns the artifact directory of a card: <repository>/<package>.
// Ids whose parts are not plain directory names are rejected.
func Dir(id string) (string, error) {
	if err := card.ValidatePathSegments(id); err != nil {
		return "", err
	}
	c := card.Decompose(id)
	return c.Repository + "/" + c.PackageName, nil
}
