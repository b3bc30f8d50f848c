package model

// EntityGroup is a cluster of detected occurrences judged to denote one
// real-world entity. All occurrences share the same entity type. Groups are
// created once per processing pass and discarded after validation decisions
// are recorded.
type EntityGroup struct {
	// Canonical is the longest, most complete surface form in the group
	// (ties broken by first occurrence).
	Canonical string `json:"canonical"`
	Type      EntityType `json:"entity_type"`
	// Occurrences holds every detection in document order.
	Occurrences []DetectedEntity `json:"occurrences"`
	// Ambiguous is set when the group's identity is uncertain, e.g. a
	// shared surname with a different first name, or a standalone token
	// matching more than one known entity. Ambiguous groups are surfaced
	// for human adjudication, never silently merged or split.
	Ambiguous bool `json:"ambiguous"`
	// Gender is the first non-empty gender seen among occurrences.
	Gender Gender `json:"gender,omitempty"`
}

// Add appends an occurrence, keeping the canonical form up to date
func (g *EntityGroup) Add(e DetectedEntity) {
	g.Occurrences = append(g.Occurrences, e)
	if len(e.Text) > len(g.Canonical) {
		g.Canonical = e.Text
	}
	if g.Gender == GenderUnknown && e.Gender != GenderUnknown {
		g.Gender = e.Gender
	}
}

// VariantTexts returns the distinct raw surface strings seen in the group,
// in first-occurrence order.
func (g *EntityGroup) VariantTexts() []string {
	seen := make(map[string]bool, len(g.Occurrences))
	var variants []string
	for _, o := range g.Occurrences {
		if !seen[o.Text] {
			seen[o.Text] = true
			variants = append(variants, o.Text)
		}
	}
	return variants
}

// FirstPos returns the earliest start offset in the group, used for
// deterministic first-occurrence ordering. Returns -1 for an empty group.
func (g *EntityGroup) FirstPos() int {
	pos := -1
	for _, o := range g.Occurrences {
		if pos == -1 || o.StartPos < pos {
			pos = o.StartPos
		}
	}
	return pos
}
