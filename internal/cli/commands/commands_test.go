package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/config"
	"github.com/NullVoxPopuli/cardstack/internal/realm"
)

const (
	parentID = "local-hub::parent-card"
	childID  = "local-hub::child-card"
)

const parentCard = `{
  "data": {
    "type": "cards",
    "id": "local-hub::parent-card",
    "relationships": {
      "fields": {"data": [{"type": "fields", "id": "title"}]},
      "model": {"data": {"type": "local-hub::parent-card", "id": "local-hub::parent-card"}}
    }
  },
  "included": [
    {"type": "fields", "id": "title", "attributes": {"field-type": "@cardstack/core-types::string", "is-metadata": true, "needed-when-embedded": true}},
    {"type": "local-hub::parent-card", "id": "local-hub::parent-card", "attributes": {"title": "Parent"}}
  ]
}`

const childCard = `{
  "data": {
    "type": "cards",
    "id": "local-hub::child-card",
    "relationships": {
      "fields": {"data": [{"type": "fields", "id": "subtitle"}]},
      "adopted-from": {"data": {"type": "cards", "id": "local-hub::parent-card"}},
      "model": {"data": {"type": "local-hub::child-card", "id": "local-hub::child-card"}}
    }
  },
  "included": [
    {"type": "fields", "id": "subtitle", "attributes": {"field-type": "@cardstack/core-types::string", "is-metadata": true}},
    {"type": "local-hub::child-card", "id": "local-hub::child-card", "attributes": {"title": "Child", "subtitle": "More"}}
  ]
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setupRealm writes a config with one realm holding the parent and child
// cards and returns the config path and realm directory.
func setupRealm(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	realmDir := filepath.Join(root, "cards")
	writeFile(t, filepath.Join(realmDir, "parent-card", "card.json"), parentCard)
	writeFile(t, filepath.Join(realmDir, "child-card", "card.json"), childCard)

	configPath := filepath.Join(root, "cardhub.yaml")
	writeFile(t, configPath, "log:\n  level: error\nrealms:\n  - repository: local-hub\n    directory: "+realmDir+"\n")
	return configPath, realmDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "cardhub", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "validate", "ingest", "get", "list", "serve", "watch", "new", "completion"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	GoVersion = "go1.23"

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cardhub version: 1.0.0-test")
	assert.Contains(t, out, "Git commit: abc123")
	assert.Contains(t, out, "Go version: go1.23")
}

func TestCompletionCommand(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "cardhub")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	configPath, realmDir := setupRealm(t)

	out, err := execute(t, "--config", configPath, "validate", filepath.Join(realmDir, "child-card", "card.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "card 'local-hub::child-card' is valid")

	bad := filepath.Join(t.TempDir(), "card.json")
	writeFile(t, bad, strings.Replace(parentCard, `"type": "cards"`, `"type": "articles"`, 1))
	_, err = execute(t, "--config", configPath, "validate", bad)
	assert.ErrorIs(t, err, card.ErrInvalidCard)
}

func TestIngestCommand_RetriesMissingParents(t *testing.T) {
	root := t.TempDir()
	// The child sorts first so that its parent is missing on the first pass.
	writeFile(t, filepath.Join(root, "batch", "a", "card.json"), childCard)
	writeFile(t, filepath.Join(root, "batch", "b", "card.json"), parentCard)
	configPath := filepath.Join(root, "cardhub.yaml")
	writeFile(t, configPath, "log:\n  level: error\n")

	out, err := execute(t, "--config", configPath, "ingest", filepath.Join(root, "batch"))
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2] ✓ local-hub::parent-card")
	assert.Contains(t, out, "[2/2] ✓ local-hub::child-card")
	assert.Contains(t, out, "2 of 2 succeeded")
}

func TestIngestCommand_ReportsFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "child", "card.json"), childCard)
	configPath := filepath.Join(root, "cardhub.yaml")
	writeFile(t, configPath, "log:\n  level: error\n")

	out, err := execute(t, "--config", configPath, "ingest", filepath.Join(root, "child"))
	require.Error(t, err)
	assert.Contains(t, out, "✗ local-hub::child-card")
	assert.Contains(t, out, "0 of 1 succeeded, 1 failed")
}

func TestGetCommand(t *testing.T) {
	configPath, _ := setupRealm(t)

	out, err := execute(t, "--config", configPath, "get", childID, "--format", "embedded")
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "cards"`)
	assert.Contains(t, out, `"id": "local-hub::child-card"`)

	_, err = execute(t, "--config", configPath, "get", "local-hub::parent-crd")
	require.Error(t, err)
	assert.True(t, card.IsNotFound(err))
	var suggested *suggestedError
	require.True(t, errors.As(err, &suggested))
	assert.Contains(t, suggested.suggestions, parentID)

	_, err = execute(t, "--config", configPath, "get", childID, "--format", "tiny")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	configPath, _ := setupRealm(t)

	out, err := execute(t, "--config", configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ADOPTED FROM")
	assert.Contains(t, out, childID)
	assert.Contains(t, out, parentID)

	out, err = execute(t, "--config", configPath, "list", "--json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))
}

func TestNewCommand(t *testing.T) {
	configPath, realmDir := setupRealm(t)

	out, err := execute(t, "--config", configPath, "new", "local-hub::blog-post", "--field", "title", "--field", "body", "--adopts", parentID)
	require.NoError(t, err)
	assert.Contains(t, out, "Created card local-hub::blog-post")

	doc, err := realm.ReadCard(filepath.Join(realmDir, "blog-post", "card.json"))
	require.NoError(t, err)
	assert.Equal(t, "local-hub::blog-post", doc.ID())
	assert.Equal(t, parentID, doc.Data.AdoptedFromID())
	assert.Len(t, doc.Data.FieldRefs(), 2)

	_, err = execute(t, "--config", configPath, "new", "local-hub::blog-post")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", configPath, "new", "elsewhere::thing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no realm is configured")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "list")
	require.Error(t, err)

	var cfgErr *configError
	assert.True(t, errors.As(err, &cfgErr))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetErr(&out)
	writeError(cmd, err)
	assert.Contains(t, out.String(), "CONFIGURATION ERROR")
}

func TestValidateCardID(t *testing.T) {
	assert.NoError(t, validateCardID("local-hub::article-card"))
	assert.Error(t, validateCardID(""))
	assert.Error(t, validateCardID("article-card"))
	assert.Error(t, validateCardID("local-hub::article-card::title"))
	assert.Error(t, validateCardID("local-hub::Article Card"))
}

func TestScaffoldCard(t *testing.T) {
	doc, err := scaffoldCard("local-hub::note", "", []string{"title", "title"})
	require.NoError(t, err)
	assert.Len(t, doc.Data.FieldRefs(), 1)
	assert.Empty(t, doc.Data.AdoptedFromID())
	_, ok := doc.FindIncluded("local-hub::note", "local-hub::note")
	assert.True(t, ok)

	_, err = scaffoldCard("local-hub::note", "", []string{"Bad Field"})
	assert.Error(t, err)
	_, err = scaffoldCard("local-hub::note", "nope", nil)
	assert.Error(t, err)
}

func TestCardFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one", "card.json"), parentCard)
	writeFile(t, filepath.Join(root, "two", "card.yaml"), "data: {}\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	files, err := cardFiles([]string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "one", "card.json"),
		filepath.Join(root, "two", "card.yaml"),
	}, files)

	files, err = cardFiles([]string{filepath.Join(root, "one")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "one", "card.json")}, files)

	_, err = cardFiles([]string{filepath.Join(root, "empty")})
	assert.Error(t, err)
}

func TestReindex(t *testing.T) {
	configPath, realmDir := setupRealm(t)
	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := openApp(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.reindex(ctx, []string{parentID}))
	_, err = a.index.Get(ctx, parentID, card.FormatIsolated)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(realmDir, "parent-card")))
	require.NoError(t, a.reindex(ctx, []string{parentID, "other-hub::ignored"}))
	_, err = a.index.Get(ctx, parentID, card.FormatIsolated)
	assert.True(t, card.IsNotFound(err))
}

func TestOpenApp_FileArtifacts(t *testing.T) {
	configPath, _ := setupRealm(t)
	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	cfg.Artifacts.Sink = config.SinkFile
	cfg.Artifacts.Dir = t.TempDir()
	cfg.Cache.Backend = config.CacheMemory

	ctx := context.Background()
	a, err := openApp(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	n, err := a.loadRealms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(cfg.Artifacts.Dir, "local-hub", "parent-card", "card.json"))
	assert.FileExists(t, filepath.Join(cfg.Artifacts.Dir, "local-hub", "child-card", "package.json"))
}
