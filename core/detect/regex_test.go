package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voilenlp/voile/model"
)

func TestRegexDetector(t *testing.T) {
	detector := RegexDetector()

	t.Run("Detects title-prefixed names with spans", func(t *testing.T) {
		text := "Le rapport mentionne Mme Marie Dubois et Dr Martin."
		entities, err := detector(text)
		require.NoError(t, err)
		require.Len(t, entities, 2)

		assert.Equal(t, "Mme Marie Dubois", entities[0].Text)
		assert.Equal(t, model.EntityTypePerson, entities[0].Type)
		assert.Equal(t, entities[0].Text, text[entities[0].StartPos:entities[0].EndPos])

		assert.Equal(t, "Dr Martin", entities[1].Text)
		assert.Equal(t, entities[1].Text, text[entities[1].StartPos:entities[1].EndPos])
	})

	t.Run("Keeps hyphenated compounds whole", func(t *testing.T) {
		entities, err := detector("M. Jean-Pierre Martin est arrivé.")
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "M. Jean-Pierre Martin", entities[0].Text)
	})

	t.Run("Infers gender from gendered titles", func(t *testing.T) {
		entities, err := detector("Mme Dubois a rencontré M. Martin et Dr Bernard.")
		require.NoError(t, err)
		require.Len(t, entities, 3)
		assert.Equal(t, model.GenderFemale, entities[0].Gender)
		assert.Equal(t, model.GenderMale, entities[1].Gender)
		assert.Equal(t, model.GenderUnknown, entities[2].Gender)
	})

	t.Run("No match on untitled text", func(t *testing.T) {
		entities, err := detector("Aucune personne ici.")
		require.NoError(t, err)
		assert.Empty(t, entities)
	})
}

func TestMerge(t *testing.T) {
	fixed := func(entities ...model.DetectedEntity) DetectFunc {
		return func(string) ([]model.DetectedEntity, error) { return entities, nil }
	}

	t.Run("Longer span wins on overlap", func(t *testing.T) {
		short := fixed(model.DetectedEntity{Text: "Dubois", Type: model.EntityTypePerson, StartPos: 10, EndPos: 16, Source: "ner"})
		long := fixed(model.DetectedEntity{Text: "Marie Dubois", Type: model.EntityTypePerson, StartPos: 4, EndPos: 16, Source: "regex"})

		merged, err := Merge(short, long)("")
		require.NoError(t, err)
		require.Len(t, merged, 1)
		assert.Equal(t, "Marie Dubois", merged[0].Text)
	})

	t.Run("Identical spans merge gender and confidence", func(t *testing.T) {
		confidence := 0.93
		ner := fixed(model.DetectedEntity{Text: "Mme Dubois", Type: model.EntityTypePerson, StartPos: 0, EndPos: 10, Confidence: &confidence, Source: "ner"})
		regex := fixed(model.DetectedEntity{Text: "Mme Dubois", Type: model.EntityTypePerson, StartPos: 0, EndPos: 10, Gender: model.GenderFemale, Source: "regex"})

		merged, err := Merge(ner, regex)("")
		require.NoError(t, err)
		require.Len(t, merged, 1)
		assert.Equal(t, model.GenderFemale, merged[0].Gender)
		require.NotNil(t, merged[0].Confidence)
		assert.Equal(t, 0.93, *merged[0].Confidence)
	})

	t.Run("Disjoint detections are kept in document order", func(t *testing.T) {
		a := fixed(model.DetectedEntity{Text: "Paris", Type: model.EntityTypeLocation, StartPos: 30, EndPos: 35})
		b := fixed(model.DetectedEntity{Text: "Marie Dubois", Type: model.EntityTypePerson, StartPos: 0, EndPos: 12})

		merged, err := Merge(a, b)("")
		require.NoError(t, err)
		require.Len(t, merged, 2)
		assert.Equal(t, "Marie Dubois", merged[0].Text)
		assert.Equal(t, "Paris", merged[1].Text)
	})
}
