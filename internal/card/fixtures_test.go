package card

const articleCardID = "local-hub::article-card"

const externalArticle = `{
  "data": {
    "type": "cards",
    "id": "local-hub::article-card",
    "attributes": {
      "isolated-template": "<h1>{{this.title}}</h1>",
      "isolated-css": "",
      "metadata-summary": {"title": "string", "body": "string"}
    },
    "relationships": {
      "fields": {"data": [
        {"type": "fields", "id": "title"},
        {"type": "fields", "id": "body"},
        {"type": "fields", "id": "author"}
      ]},
      "model": {"data": {"type": "local-hub::article-card", "id": "local-hub::article-card"}}
    },
    "meta": {"version": "0.0.1"}
  },
  "included": [
    {"type": "fields", "id": "title", "attributes": {"field-type": "@cardstack/core-types::string", "is-metadata": true, "needed-when-embedded": true}},
    {"type": "fields", "id": "body", "attributes": {"field-type": "@cardstack/core-types::string", "is-metadata": true}},
    {"type": "fields", "id": "author", "attributes": {"field-type": "@cardstack/core-types::belongs-to", "is-metadata": true, "needed-when-embedded": true},
     "relationships": {"constraints": {"data": [{"type": "constraints", "id": "author-required"}]}}},
    {"type": "constraints", "id": "author-required", "attributes": {"constraint-type": "@cardstack/core-types::not-empty"}},
    {"type": "local-hub::article-card", "id": "local-hub::article-card",
     "attributes": {"title": "Hello", "body": "World"},
     "relationships": {"author": {"data": {"type": "cards", "id": "local-hub::user-card"}}}},
    {"type": "comments", "id": "c1", "attributes": {"text": "first"}}
  ]
}`
