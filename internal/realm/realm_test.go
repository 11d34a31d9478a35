package realm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

const userCard = `{
  "data": {
    "type": "cards",
    "id": "local-hub::user-card",
    "attributes": {"isolated-template": "<h1>{{this.name}}</h1>", "isolated-css": ""},
    "relationships": {
      "fields": {"data": [{"type": "fields", "id": "name"}]},
      "model": {"data": {"type": "local-hub::user-card", "id": "local-hub::user-card"}}
    }
  },
  "included": [
    {"type": "fields", "id": "name", "attributes": {"field-type": "@cardstack/core-types::string"}},
    {"type": "local-hub::user-card", "id": "local-hub::user-card", "attributes": {"name": "Ada"}}
  ]
}`

const userCardYAML = `
data:
  type: cards
  id: local-hub::user-card
  relationships:
    fields:
      data:
        - type: fields
          id: name
    model:
      data:
        type: local-hub::user-card
        id: local-hub::user-card
included:
  - type: local-hub::user-card
    id: local-hub::user-card
    attributes:
      name: Grace
`

func newRealm(t *testing.T) Realm {
	t.Helper()
	return Realm{Repository: "local-hub", Directory: t.TempDir()}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mustDoc(t *testing.T, raw string) *card.Document {
	t.Helper()
	var doc card.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func TestRealm_CardDirAndID(t *testing.T) {
	r := Realm{Repository: "local-hub", Directory: "/cards"}

	dir, err := r.CardDir("local-hub::user-card")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cards", "user-card"), dir)

	_, err = r.CardDir("other-hub::user-card")
	require.Error(t, err)
	_, err = r.CardDir("local-hub::user-card::name")
	require.Error(t, err)
	for _, id := range []string{"local-hub::..", "local-hub::.", `local-hub::a\b`} {
		_, err = r.CardDir(id)
		assert.ErrorIs(t, err, card.ErrInvalidCard, id)
	}

	id, ok := r.CardID(filepath.Join("/cards", "user-card", "isolated.hbs"))
	require.True(t, ok)
	assert.Equal(t, "local-hub::user-card", id)

	_, ok = r.CardID("/cards")
	assert.False(t, ok)
	_, ok = r.CardID("/elsewhere/user-card")
	assert.False(t, ok)
	_, ok = r.CardID(filepath.Join("/cards", ".git", "HEAD"))
	assert.False(t, ok)
}

func TestRealm_ReadJSONWithAssetFiles(t *testing.T) {
	r := newRealm(t)
	dir := filepath.Join(r.Directory, "user-card")
	writeFile(t, filepath.Join(dir, JSONFile), userCard)
	writeFile(t, filepath.Join(dir, "isolated.hbs"), "<h1>ignored</h1>")
	writeFile(t, filepath.Join(dir, "isolated.css"), ".user { color: red; }")

	doc, err := r.Read("local-hub::user-card")
	require.NoError(t, err)
	assert.Equal(t, "<h1>{{this.name}}</h1>", doc.Data.Attributes["isolated-template"], "document values win")
	assert.Equal(t, ".user { color: red; }", doc.Data.Attributes["isolated-css"], "files fill empty assets")
	assert.NotContains(t, doc.Data.Attributes, "embedded-js")
}

func TestRealm_ReadYAML(t *testing.T) {
	r := newRealm(t)
	writeFile(t, filepath.Join(r.Directory, "user-card", YAMLFile), userCardYAML)

	doc, err := r.Read("local-hub::user-card")
	require.NoError(t, err)
	require.NoError(t, card.ValidateExternal(doc))
	model, ok := doc.FindIncluded("local-hub::user-card", "local-hub::user-card")
	require.True(t, ok)
	assert.Equal(t, "Grace", model.Attributes["name"])
	assert.Equal(t, []card.Identifier{{Type: "fields", ID: "name"}}, doc.Data.FieldRefs())
}

func TestRealm_LocateMissing(t *testing.T) {
	r := newRealm(t)
	_, err := r.Locate("local-hub::nope")
	require.ErrorIs(t, err, card.ErrNotFound)
	_, err = r.Read("other-hub::nope")
	require.ErrorIs(t, err, card.ErrNotFound)
}

func TestRealm_WriteRoundTrip(t *testing.T) {
	r := newRealm(t)
	dir := filepath.Join(r.Directory, "user-card")
	writeFile(t, filepath.Join(dir, "isolated.css"), "stale")

	written, err := r.Write(mustDoc(t, userCard))
	require.NoError(t, err)
	assert.Equal(t, dir, written)

	assert.FileExists(t, filepath.Join(dir, "isolated.hbs"))
	assert.NoFileExists(t, filepath.Join(dir, "isolated.css"), "empty assets remove their file")

	raw, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "isolated-template")

	doc, err := r.Read("local-hub::user-card")
	require.NoError(t, err)
	assert.Equal(t, "<h1>{{this.name}}</h1>", doc.Data.Attributes["isolated-template"])
	assert.Equal(t, "local-hub::user-card", doc.ID())
}

func TestRealm_WriteRejectsInvalid(t *testing.T) {
	r := newRealm(t)
	doc := mustDoc(t, userCard)
	doc.Data.Type = "users"
	_, err := r.Write(doc)
	require.ErrorIs(t, err, card.ErrInvalidCard)
}

func TestRealm_Load(t *testing.T) {
	ctx := context.Background()
	r := newRealm(t)
	writeFile(t, filepath.Join(r.Directory, "user-card", JSONFile), userCard)
	writeFile(t, filepath.Join(r.Directory, "empty-dir", "notes.txt"), "not a card")
	writeFile(t, filepath.Join(r.Directory, "README.md"), "# cards")

	docs, err := r.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "local-hub::user-card", docs[0].ID())

	_, err = Realm{Repository: "x", Directory: filepath.Join(r.Directory, "missing")}.Load(ctx)
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	realms := []Realm{{Repository: "a", Directory: "/a"}, {Repository: "b", Directory: "/b"}}
	r, ok := Find(realms, "b::card")
	require.True(t, ok)
	assert.Equal(t, "/b", r.Directory)
	_, ok = Find(realms, "c::card")
	assert.False(t, ok)
}
