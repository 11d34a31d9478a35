package artifact

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

const testCardID = "local-hub::article-card"

func internalCard(t *testing.T, title, version string) *card.Document {
	t.Helper()
	raw := `{
	  "data": {
	    "type": "local-hub::article-card",
	    "id": "local-hub::article-card",
	    "attributes": {
	      "local-hub::article-card::title": "` + title + `",
	      "local-hub::article-card::word-count": 3,
	      "local-hub::article-card::subtitle": null,
	      "isolated-template": "<h1>{{title}}</h1>",
	      "isolated-css": "  ",
	      "metadata-summary": {"title": "` + title + `"}
	    },
	    "relationships": {
	      "fields": {"data": [
	        {"type": "fields", "id": "local-hub::article-card::title"},
	        {"type": "computed-fields", "id": "local-hub::article-card::word-count"}
	      ]},
	      "local-hub::article-card::author": {"data": null}
	    },
	    "meta": {"version": "` + version + `"}
	  },
	  "included": [
	    {"type": "fields", "id": "local-hub::article-card::title", "attributes": {"field-type": "@cardstack/core-types::string"}},
	    {"type": "computed-fields", "id": "local-hub::article-card::word-count"}
	  ]
	}`
	var doc card.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func newFileBuilder(t *testing.T) (*Builder, string) {
	t.Helper()
	root := t.TempDir()
	sink, err := NewFileSink(root)
	require.NoError(t, err)
	b, err := NewBuilder(sink, 8, nil)
	require.NoError(t, err)
	return b, root
}

func TestCleanCard(t *testing.T) {
	doc := internalCard(t, "Hello", "1")
	clean := CleanCard(doc)

	attrs := clean.Data.Attributes
	assert.Contains(t, attrs, "local-hub::article-card::title")
	assert.NotContains(t, attrs, "local-hub::article-card::word-count", "computed values are removed")
	assert.NotContains(t, attrs, "local-hub::article-card::subtitle", "null attributes are removed")
	assert.NotContains(t, attrs, card.AttrMetadataSummary)
	assert.NotContains(t, clean.Data.Relationships, "local-hub::article-card::author")
	assert.Contains(t, clean.Data.Relationships, card.RelFields)
	assert.Nil(t, clean.Data.Meta)

	require.Len(t, clean.Included, 2)
	assert.Equal(t, "computed-fields", clean.Included[0].Type)
	assert.Equal(t, "fields", clean.Included[1].Type)

	assert.Contains(t, doc.Data.Attributes, card.AttrMetadataSummary, "input is not modified")
}

func TestHash_IgnoresIncludedOrderAndMeta(t *testing.T) {
	a := internalCard(t, "Hello", "1")
	b := internalCard(t, "Hello", "2")
	b.Included[0], b.Included[1] = b.Included[1], b.Included[0]

	ha, err := Hash(CleanCard(a))
	require.NoError(t, err)
	hb, err := Hash(CleanCard(b))
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	c := internalCard(t, "Goodbye", "1")
	hc, err := Hash(CleanCard(c))
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestAssetFile(t *testing.T) {
	assert.Equal(t, "isolated.hbs", AssetFile("isolated-template"))
	assert.Equal(t, "embedded.js", AssetFile("embedded-js"))
	assert.Equal(t, "embedded.css", AssetFile("embedded-css"))
}

func TestBuilder_WritesArtifacts(t *testing.T) {
	b, root := newFileBuilder(t)

	build, err := b.Build(context.Background(), internalCard(t, "Hello", "1"))
	require.NoError(t, err)
	assert.False(t, build.Skipped)
	assert.Equal(t, testCardID, build.CardID)
	assert.Equal(t, "local-hub/article-card", build.Dir)
	assert.NotEmpty(t, build.ID)
	assert.Equal(t, []string{"card.json", "isolated.hbs", "package.json"}, build.Files)

	dir := filepath.Join(root, "local-hub", "article-card")
	tmpl, err := os.ReadFile(filepath.Join(dir, "isolated.hbs"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>{{title}}</h1>", string(tmpl))
	assert.NoFileExists(t, filepath.Join(dir, "isolated.css"), "blank assets are not written")

	var pkg map[string]any
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &pkg))
	assert.Equal(t, "article-card", pkg["name"])
	assert.Equal(t, "0.0.0", pkg["version"])
	assert.Equal(t, map[string]any{"@glimmer/component": "*"}, pkg["peerDependencies"])

	var written card.Document
	raw, err = os.ReadFile(filepath.Join(dir, "card.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &written))
	assert.Equal(t, testCardID, written.ID())
	assert.Nil(t, written.Data.Meta)

	hash, ok := b.Hash(testCardID)
	require.True(t, ok)
	assert.Equal(t, build.Hash, hash)
}

func TestBuilder_SkipsUnchangedAndSeenVersions(t *testing.T) {
	ctx := context.Background()
	b, root := newFileBuilder(t)

	first, err := b.Build(ctx, internalCard(t, "Hello", "1"))
	require.NoError(t, err)
	require.False(t, first.Skipped)

	same, err := b.Build(ctx, internalCard(t, "Hello", "2"))
	require.NoError(t, err)
	assert.True(t, same.Skipped, "meta does not change the hash")
	assert.Equal(t, first.Hash, same.Hash)

	stale, err := b.Build(ctx, internalCard(t, "Older", "1"))
	require.NoError(t, err)
	assert.True(t, stale.Skipped, "a version that was already built is not rewritten")

	tmpl := filepath.Join(root, "local-hub", "article-card", "card.json")
	raw, err := os.ReadFile(tmpl)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Hello")

	newer, err := b.Build(ctx, internalCard(t, "Newer", "3"))
	require.NoError(t, err)
	assert.False(t, newer.Skipped)
	raw, err = os.ReadFile(tmpl)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Newer")
}

func TestBuilder_RemovesEmptiedAssets(t *testing.T) {
	ctx := context.Background()
	b, root := newFileBuilder(t)

	_, err := b.Build(ctx, internalCard(t, "Hello", ""))
	require.NoError(t, err)
	path := filepath.Join(root, "local-hub", "article-card", "isolated.hbs")
	require.FileExists(t, path)

	doc := internalCard(t, "Hello", "")
	doc.Data.Attributes["isolated-template"] = ""
	build, err := b.Build(ctx, doc)
	require.NoError(t, err)
	assert.False(t, build.Skipped)
	assert.NoFileExists(t, path)
}

func TestBuilder_Invalidate(t *testing.T) {
	ctx := context.Background()
	b, root := newFileBuilder(t)

	build, err := b.Build(ctx, internalCard(t, "Hello", "1"))
	require.NoError(t, err)

	require.NoError(t, b.Invalidate(ctx, "not-a-known-hash"))
	assert.DirExists(t, filepath.Join(root, "local-hub", "article-card"))

	require.NoError(t, b.Invalidate(ctx, build.Hash))
	assert.NoDirExists(t, filepath.Join(root, "local-hub", "article-card"))
	_, ok := b.Hash(testCardID)
	assert.False(t, ok)

	again, err := b.Build(ctx, internalCard(t, "Hello", "1"))
	require.NoError(t, err)
	assert.False(t, again.Skipped, "invalidated versions are built again")
	assert.Equal(t, build.Hash, again.Hash)
}

func TestBuilder_RejectsNonCards(t *testing.T) {
	b, _ := newFileBuilder(t)
	_, err := b.Build(context.Background(), &card.Document{Data: &card.Resource{Type: "local-hub", ID: "local-hub"}})
	require.Error(t, err)

	_, err = NewBuilder(nil, 1, nil)
	require.Error(t, err)
}

func TestNewS3Sink(t *testing.T) {
	_, err := NewS3Sink(S3Config{})
	require.Error(t, err)
	_, err = NewS3Sink(S3Config{Endpoint: "localhost:9000", Bucket: "cards"})
	require.Error(t, err)

	sink, err := NewS3Sink(S3Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "cards",
		Prefix:    "/artifacts/",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", sink.region)
	assert.Equal(t, "artifacts/local-hub/article-card/card.json", sink.objectKey("local-hub/article-card", CardFile))
	assert.Equal(t, "artifacts/local-hub/article-card/", sink.objectKey("local-hub/article-card", ""))
}

func TestBuilder_RejectsEscapingIDs(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	root := filepath.Join(base, "a", "b")
	sink, err := NewFileSink(root)
	require.NoError(t, err)
	b, err := NewBuilder(sink, 8, nil)
	require.NoError(t, err)

	keep := filepath.Join(base, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))

	for _, id := range []string{"..::..", "local-hub::..", ".::pkg", "local-hub::a/b", `local-hub::a\b`} {
		doc := &card.Document{Data: &card.Resource{Type: id, ID: id}}
		_, err := b.Build(ctx, doc)
		assert.ErrorIs(t, err, card.ErrInvalidCard, id)
		assert.ErrorIs(t, b.InvalidateCard(ctx, id), card.ErrInvalidCard, id)
	}

	assert.NoFileExists(t, filepath.Join(base, CardFile))
	assert.NoFileExists(t, filepath.Join(base, PackageFile))
	assert.FileExists(t, keep)
}

func TestFileSink_StaysBelowRoot(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	root := filepath.Join(base, "root")
	sink, err := NewFileSink(root)
	require.NoError(t, err)

	for _, dir := range []string{"", ".", "..", "../x", "/abs"} {
		assert.Error(t, sink.Write(ctx, dir, map[string][]byte{CardFile: []byte("{}")}), dir)
		assert.Error(t, sink.Remove(ctx, dir), dir)
	}
	assert.Error(t, sink.Write(ctx, "local-hub/card", map[string][]byte{"../escape.json": []byte("{}")}))
	assert.DirExists(t, root)
	assert.NoFileExists(t, filepath.Join(root, "local-hub", "escape.json"))

	require.NoError(t, sink.Write(ctx, "local-hub/card", map[string][]byte{CardFile: []byte("{}")}))
	assert.FileExists(t, filepath.Join(root, "local-hub", "card", CardFile))
}

func TestDir(t *testing.T) {
	dir, err := Dir(testCardID)
	require.NoError(t, err)
	assert.Equal(t, "local-hub/article-card", dir)

	_, err = Dir("..::..")
	assert.ErrorIs(t, err, card.ErrInvalidCard)
}
