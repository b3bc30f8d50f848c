package model

import "fmt"

// EntityType represents the category of a detected entity
type EntityType string

const (
	EntityTypePerson   EntityType = "PERSON"
	EntityTypeLocation EntityType = "LOCATION"
	EntityTypeOrg      EntityType = "ORG"
)

// ReviewOrder is the fixed priority order entities are reviewed in.
// Personal names carry the highest re-identification risk and come first.
var ReviewOrder = []EntityType{EntityTypePerson, EntityTypeOrg, EntityTypeLocation}

// Valid reports whether the entity type is one of the known categories
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypePerson, EntityTypeLocation, EntityTypeOrg:
		return true
	}
	return false
}

// Gender represents the detected grammatical gender of a PERSON entity
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = ""
)

// DetectedEntity is a single candidate produced by the detection layer
// (NER model or regex matcher). It is immutable once produced.
type DetectedEntity struct {
	Text       string     `json:"text"`
	Type       EntityType `json:"entity_type"`
	StartPos   int        `json:"start_pos"`
	EndPos     int        `json:"end_pos"`
	Confidence *float64   `json:"confidence,omitempty"`
	Source     string     `json:"source,omitempty"`
	Gender     Gender     `json:"gender,omitempty"`
}

// Validate checks the detection invariants (valid type, well-formed span).
// Entities failing validation are rejected per-entity at the grouping
// boundary, they never abort the batch.
func (e DetectedEntity) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown entity type %q", e.Type)
	}
	if e.Text == "" {
		return fmt.Errorf("empty entity text")
	}
	if e.StartPos < 0 || e.EndPos <= e.StartPos {
		return fmt.Errorf("invalid span [%d, %d)", e.StartPos, e.EndPos)
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
		return fmt.Errorf("confidence %f out of range [0, 1]", *e.Confidence)
	}
	return nil
}
