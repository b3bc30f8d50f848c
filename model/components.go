package model

// NameComponents is the deterministic decomposition of an entity's canonical
// text, used only as a matching/lookup key. The text that appears in output
// documents is never taken from here.
type NameComponents struct {
	// First is the first-name token for PERSON entities (a hyphenated
	// compound like "Jean-Pierre" stays one atomic unit). For LOCATION and
	// ORG it holds the full normalized string.
	First string `json:"first"`
	// Last is the remaining tokens joined as the last name. Empty for a
	// first-name-only mention and for non-PERSON types.
	Last string `json:"last"`
	// IsCompound is true when First contains an internal hyphen.
	IsCompound bool `json:"is_compound"`
}

// SingleToken reports whether the mention carries only one name token.
// Such mentions may refer to either the first or the last name of an
// already-known entity.
func (c NameComponents) SingleToken() bool {
	return c.Last == ""
}
