package model

import (
	"time"

	"github.com/google/uuid"
)

// Assignment is the durable entity-to-pseudonym mapping. Created on first
// assignment, read on every subsequent lookup within the same store, never
// mutated after creation. Within one store a given normalized full name maps
// to exactly one pseudonym.
type Assignment struct {
	ID       uuid.UUID  `json:"id"`
	Type     EntityType `json:"entity_type"`
	FullName string     `json:"full_name"` // original text, encrypted at rest

	// Normalized lookup keys derived from FullName. The stores index these
	// (keyed-hash form in the encrypted store) so lookups never need to
	// decrypt the table.
	FullKey  string `json:"-"`
	FirstKey string `json:"-"`
	LastKey  string `json:"-"`

	PseudonymFull  string `json:"pseudonym_full"`
	PseudonymFirst string `json:"pseudonym_first,omitempty"` // PERSON only
	PseudonymLast  string `json:"pseudonym_last,omitempty"`  // PERSON only

	Theme      string   `json:"theme"`
	Gender     Gender   `json:"gender,omitempty"`
	Confidence *float64 `json:"confidence_score,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"first_seen"`
}
