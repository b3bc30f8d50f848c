package model

import "github.com/google/uuid"

// ReviewState is the validation state of one entity group
type ReviewState string

const (
	ReviewPending   ReviewState = "PENDING"
	ReviewConfirmed ReviewState = "CONFIRMED"
	ReviewRejected  ReviewState = "REJECTED"
	ReviewModified  ReviewState = "MODIFIED"
	ReviewAdded     ReviewState = "ADDED"
)

// Terminal reports whether the state ends the review of an item.
// Only an explicit undo moves an item back to PENDING.
func (s ReviewState) Terminal() bool {
	return s != ReviewPending
}

// EntityReview wraps an EntityGroup with its validation state. It is mutated
// only by validator actions applied through the session state machine.
type EntityReview struct {
	ID    uuid.UUID    `json:"id"`
	Group *EntityGroup `json:"group"`
	State ReviewState  `json:"state"`
	// Ambiguous mirrors the group flag and may additionally be set by the
	// assignment engine when a component conflict is discovered.
	Ambiguous bool `json:"ambiguous"`
	// RelatedID optionally points at another review this one may refer to
	// (lookup only, never ownership).
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	// ModifiedText holds the user-corrected entity text for MODIFIED items;
	// it is what flows into preprocessing and assignment, not the original
	// detection.
	ModifiedText string `json:"modified_text,omitempty"`
	// PseudonymOverride holds a user-chosen pseudonym replacing the
	// suggested one. Collision avoidance is still enforced against it.
	PseudonymOverride string `json:"pseudonym_override,omitempty"`
	// SuggestedPseudonym is the engine's proposal shown during review.
	SuggestedPseudonym string `json:"suggested_pseudonym,omitempty"`
}

// EffectiveText returns the text that flows into assignment: the corrected
// text for MODIFIED items, the canonical form otherwise.
func (r *EntityReview) EffectiveText() string {
	if r.State == ReviewModified && r.ModifiedText != "" {
		return r.ModifiedText
	}
	return r.Group.Canonical
}

// Accepted reports whether the item takes part in substitution
func (r *EntityReview) Accepted() bool {
	switch r.State {
	case ReviewConfirmed, ReviewModified, ReviewAdded:
		return true
	}
	return false
}
