package model

// ProcessConfig controls one document processing run
type ProcessConfig struct {
	// Theme selects the pseudonym library theme recorded on assignments.
	Theme string `json:"theme"`
	// Types restricts processing to a subset of entity types. Entities of
	// excluded types are dropped before grouping and assignment, not merely
	// hidden from review. Empty means all types.
	Types []EntityType `json:"entity_types,omitempty"`
	// AutoConfirm confirms every pending review without human input.
	// Used for non-interactive batch runs.
	AutoConfirm bool `json:"auto_confirm"`
}

// DefaultProcessConfig returns a sensible default configuration
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		Theme: "neutral",
	}
}

// TypeEnabled reports whether the given entity type takes part in the run
func (c ProcessConfig) TypeEnabled(t EntityType) bool {
	if len(c.Types) == 0 {
		return true
	}
	for _, enabled := range c.Types {
		if enabled == t {
			return true
		}
	}
	return false
}
