// Package store persists indexed card records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// Record is an indexed card: its internal document together with the include
// paths that must be materialized when it is read.
type Record struct {
	ID              string
	Document        *card.Document
	DefaultIncludes []string
	Version         string
	UpdatedAt       time.Time
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Document = r.Document.Clone()
	out.DefaultIncludes = append([]string(nil), r.DefaultIncludes...)
	return &out
}

// Store is implemented by every record backend. Get and Delete fail with an
// error matching card.ErrNotFound when the card is not stored.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	// List returns every record ordered by id.
	List(ctx context.Context) ([]*Record, error)
	Close() error
}

type recordJSON struct {
	ID              string         `json:"id"`
	Document        *card.Document `json:"document"`
	DefaultIncludes []string       `json:"default-includes"`
	Version         string         `json:"version,omitempty"`
	UpdatedAt       time.Time      `json:"updated-at"`
}

func encodeRecord(r *Record) ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:              r.ID,
		Document:        r.Document,
		DefaultIncludes: r.DefaultIncludes,
		Version:         r.Version,
		UpdatedAt:       r.UpdatedAt,
	})
}

func decodeRecord(data []byte) (*Record, error) {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding card record: %w", err)
	}
	return &Record{
		ID:              raw.ID,
		Document:        raw.Document,
		DefaultIncludes: raw.DefaultIncludes,
		Version:         raw.Version,
		UpdatedAt:       raw.UpdatedAt,
	}, nil
}

func validateRecord(r *Record) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("store: record has no id")
	}
	if r.Document == nil || r.Document.ID() != r.ID {
		return fmt.Errorf("store: record '%s' does not hold its card document", r.ID)
	}
	return nil
}
