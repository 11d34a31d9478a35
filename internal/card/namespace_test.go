package card

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyNamespacing(t *testing.T) {
	external := mustDoc(t, externalArticle)
	before, err := json.Marshal(external)
	require.NoError(t, err)

	got, err := ApplyNamespacing(context.Background(), oracle, external, nil)
	require.NoError(t, err)

	after, err := json.Marshal(external)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after), "input must not be modified")

	assert.Equal(t, TypeCards, got.Data.Type)
	assert.Equal(t, []Identifier{
		{Type: TypeFields, ID: "local-hub::article-card::title"},
		{Type: TypeFields, ID: "local-hub::article-card::body"},
		{Type: TypeFields, ID: "local-hub::article-card::author"},
	}, got.Data.FieldRefs())
	assert.Equal(t, &Identifier{Type: articleCardID, ID: articleCardID}, got.Data.Linkage(RelModel).One)

	model, ok := got.FindIncluded(articleCardID, articleCardID)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"local-hub::article-card::title": "Hello",
		"local-hub::article-card::body":  "World",
	}, model.Attributes)
	assert.Equal(t, &Identifier{Type: TypeCards, ID: "local-hub::user-card"},
		model.Linkage("local-hub::article-card::author").One)

	author, ok := got.FindIncluded(TypeFields, "local-hub::article-card::author")
	require.True(t, ok)
	assert.Equal(t, []Identifier{{Type: "constraints", ID: "local-hub::article-card::author-required"}},
		author.Linkage("constraints").Identifiers())

	comment, ok := got.FindIncluded("local-hub::article-card::comments", "local-hub::article-card::c1")
	require.True(t, ok)
	assert.Empty(t, comment.Attributes, "attributes without a declaring field are dropped")
}

func TestApplyNamespacing_InheritedField(t *testing.T) {
	parent := internalCard("local-hub::base-card", "", "title")
	external := mustDoc(t, `{
	  "data": {
	    "type": "cards", "id": "local-hub::child-card",
	    "relationships": {
	      "fields": {"data": []},
	      "adopted-from": {"data": {"type": "cards", "id": "local-hub::base-card"}},
	      "model": {"data": {"type": "local-hub::child-card", "id": "local-hub::child-card"}}
	    }
	  },
	  "included": [
	    {"type": "local-hub::child-card", "id": "local-hub::child-card",
	     "attributes": {"title": "Inherited", "removed": "gone"}}
	  ]
	}`)

	got, err := ApplyNamespacing(context.Background(), oracle, external, newMemFetcher(parent))
	require.NoError(t, err)

	model, ok := got.FindIncluded("local-hub::child-card", "local-hub::child-card")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"local-hub::base-card::title": "Inherited"}, model.Attributes)
	assert.Equal(t, &Identifier{Type: TypeCards, ID: "local-hub::base-card"}, got.Data.Linkage(RelAdoptedFrom).One)
}

func TestApplyNamespacing_MissingAncestorEndsChain(t *testing.T) {
	external := mustDoc(t, externalArticle)
	external.Data.SetLinkage(RelAdoptedFrom, ToOne(TypeCards, "local-hub::missing-card"))

	_, err := ApplyNamespacing(context.Background(), oracle, external, newMemFetcher())
	assert.NoError(t, err)
}

func TestApplyNamespacing_InvalidID(t *testing.T) {
	_, err := ApplyNamespacing(context.Background(), oracle, &Document{Data: &Resource{Type: TypeCards, ID: "article"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidCard)
}

func TestNamespacingRoundTrip(t *testing.T) {
	external := mustDoc(t, externalArticle)

	namespaced, err := ApplyNamespacing(context.Background(), oracle, external, nil)
	require.NoError(t, err)
	got := RemoveNamespacing(namespaced)

	want := external.Clone()
	comment, ok := want.FindIncluded("comments", "c1")
	require.True(t, ok)
	comment.Attributes = nil

	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestRemoveNamespacing_CollapsesOtherCards(t *testing.T) {
	internal := &Document{
		Data: &Resource{
			Type: articleCardID,
			ID:   articleCardID,
			Attributes: map[string]any{
				"local-hub::article-card::title": "Hello",
				"isolated-template":              "<h1/>",
			},
			Relationships: map[string]Relationship{
				"local-hub::article-card::author": {Data: ToOne("local-hub::user-card", "local-hub::user-card")},
			},
		},
		Included: []*Resource{
			{Type: "local-hub::user-card", ID: "local-hub::user-card"},
		},
	}

	got := RemoveNamespacing(internal)

	assert.Equal(t, map[string]any{"title": "Hello", "isolated-template": "<h1/>"}, got.Data.Attributes)
	assert.Equal(t, &Identifier{Type: TypeCards, ID: "local-hub::user-card"}, got.Data.Linkage("author").One)
	assert.Equal(t, TypeCards, got.Included[0].Type)
	assert.Equal(t, "local-hub::user-card", internal.Included[0].Type, "input must not be modified")
}
