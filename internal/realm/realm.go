// Package realm reads and writes card directories. A realm maps a repository
// name onto a directory; the card repo::pkg lives in <directory>/<pkg>.
package realm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/NullVoxPopuli/cardstack/internal/artifact"
	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// Card document file names, in lookup order.
const (
	JSONFile = "card.json"
	YAMLFile = "card.yaml"
)

// Realm is a directory of cards belonging to one repository.
type Realm struct {
	Repository string `mapstructure:"repository"`
	Directory  string `mapstructure:"directory"`
}

// Owns reports whether id is a card of this realm.
func (r Realm) Owns(id string) bool {
	c := card.Decompose(id)
	return c.Repository == r.Repository && c.PackageName != "" && c.ModelID == ""
}

// CardDir returns the directory of card id.
func (r Realm) CardDir(id string) (string, error) {
	if !r.Owns(id) {
		return "", fmt.Errorf("card '%s' does not belong to realm '%s'", id, r.Repository)
	}
	if err := card.ValidatePathSegments(id); err != nil {
		return "", err
	}
	return filepath.Join(r.Directory, card.Decompose(id).PackageName), nil
}

// CardID returns the id of the card a path inside the realm belongs to.
func (r Realm) CardID(path string) (string, bool) {
	rel, err := filepath.Rel(r.Directory, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	pkg := strings.Split(filepath.ToSlash(rel), "/")[0]
	if pkg == "" || strings.HasPrefix(pkg, ".") || strings.Contains(pkg, card.Delim) {
		return "", false
	}
	return card.Compose(card.Context{Repository: r.Repository, PackageName: pkg}), true
}

// Locate returns the card document file of id.
func (r Realm) Locate(id string) (string, error) {
	dir, err := r.CardDir(id)
	if err != nil {
		return "", card.NotFound(id)
	}
	for _, name := range []string{JSONFile, YAMLFile} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", card.NotFound(id)
}

// Read loads the external document of card id.
func (r Realm) Read(id string) (*card.Document, error) {
	path, err := r.Locate(id)
	if err != nil {
		return nil, err
	}
	return ReadCard(path)
}

// Load reads every card of the realm, ordered by id.
func (r Realm) Load(ctx context.Context) ([]*card.Document, error) {
	entries, err := os.ReadDir(r.Directory)
	if err != nil {
		return nil, fmt.Errorf("read realm '%s': %w", r.Repository, err)
	}

	var docs []*card.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		id, ok := r.CardID(filepath.Join(r.Directory, entry.Name()))
		if !ok {
			continue
		}
		doc, err := r.Read(id)
		if err != nil {
			if card.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs, nil
}

// Write stores an external card document in its directory. Non-empty browser
// assets are written to their own files.
func (r Realm) Write(doc *card.Document) (string, error) {
	if err := card.ValidateExternal(doc); err != nil {
		return "", err
	}
	dir, err := r.CardDir(doc.ID())
	if err != nil {
		return "", err
	}
	return dir, WriteCard(dir, doc)
}

// ReadCard reads a card document file. Browser asset files next to it fill
// asset attributes the document leaves empty.
func ReadCard(path string) (*card.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc card.Document
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(raw, &doc)
	} else {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("parse %s: document has no data", path)
	}

	dir := filepath.Dir(path)
	for _, field := range card.BrowserAssetFields {
		if value, _ := doc.Data.Attributes[field].(string); strings.TrimSpace(value) != "" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, artifact.AssetFile(field)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		doc.Data.SetAttribute(field, string(content))
	}
	return &doc, nil
}

// WriteCard writes doc into dir as card.json plus one file per non-empty
// browser asset. Asset files of empty assets are removed.
func WriteCard(dir string, doc *card.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	out := doc.Clone()
	for _, field := range card.BrowserAssetFields {
		path := filepath.Join(dir, artifact.AssetFile(field))
		value, _ := out.Data.Attributes[field].(string)
		delete(out.Data.Attributes, field)
		if strings.TrimSpace(value) == "" {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			continue
		}
		if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
			return err
		}
	}
	if len(out.Data.Attributes) == 0 {
		out.Data.Attributes = nil
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	// card.json is authoritative once written.
	if err := os.Remove(filepath.Join(dir, YAMLFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(filepath.Join(dir, JSONFile), append(raw, '\n'), 0o644)
}

// Find returns the realm owning card id.
func Find(realms []Realm, id string) (Realm, bool) {
	for _, r := range realms {
		if r.Owns(id) {
			return r, true
		}
	}
	return Realm{}, false
}
