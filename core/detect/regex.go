package detect

import (
	"regexp"
	"sort"
	"strings"

	"github.com/voilenlp/voile/model"
)

// titledName matches a French honorific followed by one or more capitalized
// name tokens, including hyphenated compounds ("Mme Marie Dubois",
// "M. Jean-Pierre Martin"). NER models trained on running text regularly
// miss these, the title form dominates in legal and medical documents.
var titledName = regexp.MustCompile(
	`(?:M\.|Mme|Mlle|Dr|Pr|Me|Maître|Maitre|Monsieur|Madame|Mademoiselle|Docteur)\.?` +
		`(?:\s+\p{Lu}[\p{Ll}']+(?:-\p{Lu}[\p{Ll}']+)*)+`,
)

var femaleTitles = regexp.MustCompile(`^(?:Mme|Mlle|Madame|Mademoiselle)\b`)
var maleTitles = regexp.MustCompile(`^(?:M\.|Monsieur\b)`)

// RegexDetector detects title-prefixed person names. It complements the NER
// detector and infers gender from gendered honorifics.
func RegexDetector() DetectFunc {
	return func(text string) ([]model.DetectedEntity, error) {
		var entities []model.DetectedEntity
		for _, span := range titledName.FindAllStringIndex(text, -1) {
			match := text[span[0]:span[1]]
			entities = append(entities, model.DetectedEntity{
				Text:     match,
				Type:     model.EntityTypePerson,
				StartPos: span[0],
				EndPos:   span[1],
				Source:   "regex",
				Gender:   genderFromTitle(match),
			})
		}
		return entities, nil
	}
}

func genderFromTitle(s string) model.Gender {
	s = strings.TrimSpace(s)
	switch {
	case femaleTitles.MatchString(s):
		return model.GenderFemale
	case maleTitles.MatchString(s):
		return model.GenderMale
	}
	return model.GenderUnknown
}

// Merge combines several detectors into one. Overlapping detections are
// resolved in favor of the longer span; ties go to the earlier detector.
func Merge(detectors ...DetectFunc) DetectFunc {
	return func(text string) ([]model.DetectedEntity, error) {
		var all []model.DetectedEntity
		for _, d := range detectors {
			entities, err := d(text)
			if err != nil {
				return nil, err
			}
			all = append(all, entities...)
		}

		sort.SliceStable(all, func(i, j int) bool {
			li, lj := all[i].EndPos-all[i].StartPos, all[j].EndPos-all[j].StartPos
			if li != lj {
				return li > lj
			}
			return all[i].StartPos < all[j].StartPos
		})

		var kept []model.DetectedEntity
		for _, e := range all {
			overlaps := false
			for i := range kept {
				if e.StartPos < kept[i].EndPos && kept[i].StartPos < e.EndPos {
					// Same span from two detectors, merge the extra signal.
					if e.StartPos == kept[i].StartPos && e.EndPos == kept[i].EndPos {
						if kept[i].Gender == model.GenderUnknown {
							kept[i].Gender = e.Gender
						}
						if kept[i].Confidence == nil {
							kept[i].Confidence = e.Confidence
						}
					}
					overlaps = true
					break
				}
			}
			if !overlaps {
				kept = append(kept, e)
			}
		}

		sort.Slice(kept, func(i, j int) bool { return kept[i].StartPos < kept[j].StartPos })
		return kept, nil
	}
}
