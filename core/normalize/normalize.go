// Package normalize decomposes raw entity text into canonical name
// components and produces the folded match keys used by grouping and by the
// mapping store lookups. Normalization is deterministic: the same text and
// type always yield identical components.
package normalize

import (
	"strings"
	"unicode"

	"github.com/voilenlp/voile/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// French honorific titles stripped from the head of PERSON mentions for
// matching purposes. Titles are never stripped from the text that appears in
// the output document. Dotted forms ("M.", "Dr.") match with the dot removed.
var titles = map[string]bool{
	"m":            true, // only matched in dotted form, see stripToken
	"mme":          true,
	"mlle":         true,
	"dr":           true,
	"pr":           true,
	"me":           true,
	"maitre":       true,
	"monsieur":     true,
	"madame":       true,
	"mademoiselle": true,
	"docteur":      true,
}

// dotOnlyTitles require a trailing dot to count as a title ("M" alone is a
// plausible initial, "M." is not).
var dotOnlyTitles = map[string]bool{
	"m": true,
}

// Leading French prepositions stripped from LOCATION mentions so that
// "à Paris" and "Paris" share one normalized form. Entries are in Key-folded
// form because tokens are folded before lookup ("à" folds to "a").
var prepositions = map[string]bool{
	"a":   true, // à
	"au":  true,
	"aux": true,
	"en":  true,
	"de":  true,
	"du":  true,
	"des": true,
}

// Key folds a string into its match-key form: French lowercasing, diacritics
// removed, whitespace collapsed. Keys are used for grouping and as store
// lookup keys, never for output.
func Key(s string) string {
	folded, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), s)
	if err != nil {
		folded = s
	}
	lowered := cases.Lower(language.French).String(folded)
	return strings.Join(strings.Fields(lowered), " ")
}

// StripTitle removes known honorific titles from the head of a PERSON
// mention. If the whole mention consists of titles, the original trimmed
// text is returned unchanged.
func StripTitle(s string) string {
	tokens := strings.Fields(s)
	i := 0
	for i < len(tokens) && isTitle(tokens[i]) {
		i++
	}
	if i == len(tokens) {
		return strings.TrimSpace(s)
	}
	return strings.Join(tokens[i:], " ")
}

func isTitle(token string) bool {
	dotted := strings.HasSuffix(token, ".")
	key := Key(strings.TrimSuffix(token, "."))
	if !titles[key] {
		return false
	}
	if dotOnlyTitles[key] && !dotted {
		return false
	}
	return true
}

// StripPreposition removes leading French prepositions from a LOCATION
// mention ("à Paris" becomes "Paris"). Matching is case-insensitive; if the
// whole mention is prepositions the original trimmed text is returned.
func StripPreposition(s string) string {
	tokens := strings.Fields(s)
	i := 0
	for i < len(tokens) && prepositions[Key(tokens[i])] {
		i++
	}
	if i == len(tokens) {
		return strings.TrimSpace(s)
	}
	return strings.Join(tokens[i:], " ")
}

// Normalize decomposes entity text into NameComponents for the given type.
//
// PERSON: titles are stripped, the first remaining token becomes the first
// name (hyphenated compounds stay atomic), the rest joins into the last
// name. A single remaining token is a first-name-only mention.
// LOCATION: leading prepositions are stripped.
// ORG: the trimmed text is kept as-is; matching happens on the folded key.
func Normalize(text string, entityType model.EntityType) model.NameComponents {
	switch entityType {
	case model.EntityTypePerson:
		stripped := StripTitle(text)
		if strings.TrimSpace(stripped) == "" {
			return model.NameComponents{First: strings.TrimSpace(text)}
		}
		tokens := strings.Fields(stripped)
		first := tokens[0]
		comps := model.NameComponents{
			First:      first,
			IsCompound: strings.Contains(first, "-"),
		}
		if len(tokens) > 1 {
			comps.Last = strings.Join(tokens[1:], " ")
		}
		return comps
	case model.EntityTypeLocation:
		return model.NameComponents{First: StripPreposition(text)}
	default:
		return model.NameComponents{First: strings.TrimSpace(text)}
	}
}

// FullKey returns the normalized lookup key for the whole mention,
// type-aware so that "Dr. Marie Dubois", "à Paris" and "ACME sa" each reduce
// to their canonical store key.
func FullKey(text string, entityType model.EntityType) string {
	c := Normalize(text, entityType)
	if c.Last != "" {
		return Key(c.First + " " + c.Last)
	}
	return Key(c.First)
}
