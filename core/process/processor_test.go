package process

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voilenlp/voile/core/assign"
	"github.com/voilenlp/voile/core/detect"
	"github.com/voilenlp/voile/core/library"
	"github.com/voilenlp/voile/core/session"
	"github.com/voilenlp/voile/database"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
)

const testTheme = `
theme: test
first_names:
  male: [Victor, Antoine, Paul]
  female: [Camille, Louise, Iris]
  neutral: [Sacha]
last_names: [Fontaine, Leroy, Vasseur, Delcourt]
locations: [Valmont, Clairac, Brenne]
organizations: [Volt Industries, Helios Group]
`

// fixtureDetector marks exact-match detections for the given texts
func fixtureDetector(marks map[string]model.EntityType) detect.DetectFunc {
	return func(text string) ([]model.DetectedEntity, error) {
		var entities []model.DetectedEntity
		for needle, entityType := range marks {
			for offset := 0; ; {
				i := strings.Index(text[offset:], needle)
				if i < 0 {
					break
				}
				start := offset + i
				entities = append(entities, model.DetectedEntity{
					Text:     needle,
					Type:     entityType,
					StartPos: start,
					EndPos:   start + len(needle),
					Source:   "test",
				})
				offset = start + len(needle)
			}
		}
		return entities, nil
	}
}

func newTestProcessor(t *testing.T, detector detect.DetectFunc) (*Processor, *database.MemoryStore) {
	t.Helper()
	lib, err := library.Load(strings.NewReader(testTheme))
	require.NoError(t, err)

	store := database.NewMemoryStore()
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn},
	}))
	engine := assign.NewEngine(store, lib, logger)
	return NewProcessor(detector, engine, logger), store
}

var docMarks = map[string]model.EntityType{
	"Marie Dubois": model.EntityTypePerson,
	"Jean Martin":  model.EntityTypePerson,
	"Paris":        model.EntityTypeLocation,
	"Lyon":         model.EntityTypeLocation,
	"Acme SA":      model.EntityTypeOrg,
}

func TestProcessorAutoConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("Replaces every accepted entity", func(t *testing.T) {
		processor, _ := newTestProcessor(t, fixtureDetector(docMarks))

		doc := &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois travaille à Paris pour Acme SA.",
		}
		result, err := processor.Process(ctx, doc, model.ProcessConfig{Theme: "test", AutoConfirm: true}, nil)
		require.NoError(t, err)

		assert.NotContains(t, result.Output, "Marie Dubois")
		assert.NotContains(t, result.Output, "Paris")
		assert.NotContains(t, result.Output, "Acme SA")
		assert.Contains(t, result.Output, "travaille à ")
		assert.Equal(t, 3, result.Created)
		assert.Zero(t, result.Reused)
	})

	t.Run("Same entity keeps its pseudonym across documents", func(t *testing.T) {
		processor, _ := newTestProcessor(t, fixtureDetector(docMarks))
		config := model.ProcessConfig{Theme: "test", AutoConfirm: true}

		first, err := processor.Process(ctx, &model.Document{
			Title:   "un",
			Content: "Marie Dubois travaille à Paris pour Acme SA.",
		}, config, nil)
		require.NoError(t, err)

		second, err := processor.Process(ctx, &model.Document{
			Title:   "deux",
			Content: "Jean Martin collabore avec Marie Dubois à Lyon.",
		}, config, nil)
		require.NoError(t, err)

		var mariePseudonym string
		for _, a := range first.Assignments {
			if a.FullName == "Marie Dubois" {
				mariePseudonym = a.PseudonymFull
			}
		}
		require.NotEmpty(t, mariePseudonym)
		assert.Contains(t, second.Output, mariePseudonym)
		assert.Equal(t, 1, second.Reused)
		assert.Equal(t, 2, second.Created)
	})

	t.Run("Type filter drops excluded entities entirely", func(t *testing.T) {
		processor, store := newTestProcessor(t, fixtureDetector(docMarks))

		result, err := processor.Process(ctx, &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois travaille à Paris.",
		}, model.ProcessConfig{
			Theme:       "test",
			Types:       []model.EntityType{model.EntityTypePerson},
			AutoConfirm: true,
		}, nil)
		require.NoError(t, err)

		assert.Contains(t, result.Output, "Paris")
		assert.NotContains(t, result.Output, "Marie Dubois")
		assert.Len(t, result.Reviews, 1)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("Variant mentions are replaced consistently", func(t *testing.T) {
		marks := map[string]model.EntityType{
			"Marie Dubois": model.EntityTypePerson,
			"Mme Dubois":   model.EntityTypePerson,
		}
		processor, _ := newTestProcessor(t, fixtureDetector(marks))

		result, err := processor.Process(ctx, &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois dirige le service. Mme Dubois signe le rapport.",
		}, model.ProcessConfig{Theme: "test", AutoConfirm: true}, nil)
		require.NoError(t, err)

		require.Len(t, result.Assignments, 1)
		a := result.Assignments[0]
		assert.NotContains(t, result.Output, "Dubois")
		assert.Contains(t, result.Output, a.PseudonymFull+" dirige")
		// The titled surname mention keeps its title and gets the pseudonym
		// surname only.
		assert.Contains(t, result.Output, "Mme "+a.PseudonymLast+" signe")
	})
}

// scriptedProvider replays a fixed action list, repeating the last action
type scriptedProvider struct {
	actions []session.Action
	i       int
}

func (p *scriptedProvider) NextAction(*session.Session) (session.Action, error) {
	a := p.actions[p.i]
	if p.i < len(p.actions)-1 {
		p.i++
	}
	return a, nil
}

func TestProcessorValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejected entities stay in the output", func(t *testing.T) {
		processor, store := newTestProcessor(t, fixtureDetector(docMarks))

		provider := &scriptedProvider{actions: []session.Action{
			{Type: session.ActionReject},
			{Type: session.ActionConfirm},
		}}
		result, err := processor.Process(ctx, &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois travaille à Paris.",
		}, model.ProcessConfig{Theme: "test"}, provider)
		require.NoError(t, err)

		assert.Contains(t, result.Output, "Marie Dubois")
		assert.NotContains(t, result.Output, "Paris")
		assert.Equal(t, 1, store.Len())
	})

	t.Run("Modified text drives the assignment", func(t *testing.T) {
		processor, _ := newTestProcessor(t, fixtureDetector(map[string]model.EntityType{
			"Marie Duboi": model.EntityTypePerson,
		}))

		provider := &scriptedProvider{actions: []session.Action{
			{Type: session.ActionModify, Text: "Marie Dubois"},
		}}
		result, err := processor.Process(ctx, &model.Document{
			Title:   "rapport",
			Content: "Marie Duboi est présente.",
		}, model.ProcessConfig{Theme: "test"}, provider)
		require.NoError(t, err)

		require.Len(t, result.Assignments, 1)
		assert.Equal(t, "Marie Dubois", result.Assignments[0].FullName)
		assert.NotContains(t, result.Output, "Marie Duboi")
	})

	t.Run("Added entities are substituted by exact match", func(t *testing.T) {
		processor, _ := newTestProcessor(t, fixtureDetector(map[string]model.EntityType{
			"Marie Dubois": model.EntityTypePerson,
		}))

		provider := &scriptedProvider{actions: []session.Action{
			{Type: session.ActionAdd, Text: "Sophie Bernard", EntityType: model.EntityTypePerson},
			{Type: session.ActionConfirm},
		}}
		result, err := processor.Process(ctx, &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois et Sophie Bernard sont présentes.",
		}, model.ProcessConfig{Theme: "test"}, provider)
		require.NoError(t, err)

		assert.NotContains(t, result.Output, "Sophie Bernard")
		assert.NotContains(t, result.Output, "Marie Dubois")
	})

	t.Run("Pseudonym override is honored", func(t *testing.T) {
		processor, _ := newTestProcessor(t, fixtureDetector(map[string]model.EntityType{
			"Marie Dubois": model.EntityTypePerson,
			"Jean Martin":  model.EntityTypePerson,
		}))

		// Overrides apply to decided reviews: confirm, step back, change.
		provider := &scriptedProvider{actions: []session.Action{
			{Type: session.ActionConfirm},
			{Type: session.ActionPrev},
			{Type: session.ActionChangePseudonym, Pseudonym: "Nina Berthot"},
			{Type: session.ActionConfirm},
		}}
		result, err := processor.Process(ctx, &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois et Jean Martin sont présents.",
		}, model.ProcessConfig{Theme: "test"}, provider)
		require.NoError(t, err)

		assert.Contains(t, result.Output, "Nina Berthot")
		assert.NotContains(t, result.Output, "Marie Dubois")
		assert.NotContains(t, result.Output, "Jean Martin")
	})

	t.Run("Quit discards everything", func(t *testing.T) {
		processor, store := newTestProcessor(t, fixtureDetector(docMarks))

		provider := &scriptedProvider{actions: []session.Action{
			{Type: session.ActionConfirm},
			{Type: session.ActionQuit},
		}}
		doc := &model.Document{
			Title:   "rapport",
			Content: "Marie Dubois travaille à Paris pour Acme SA.",
		}
		result, err := processor.Process(ctx, doc, model.ProcessConfig{Theme: "test"}, provider)
		require.NoError(t, err)

		assert.True(t, result.Aborted)
		assert.Equal(t, doc.Content, result.Output)
		assert.Equal(t, 0, store.Len())
	})
}

func TestProcessAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Batch shares mappings across documents", func(t *testing.T) {
		processor, store := newTestProcessor(t, fixtureDetector(docMarks))

		docs := []*model.Document{
			{Title: "un", Content: "Marie Dubois travaille à Paris pour Acme SA."},
			{Title: "deux", Content: "Jean Martin collabore avec Marie Dubois à Lyon."},
		}
		results, err := processor.ProcessAll(ctx, docs, model.ProcessConfig{Theme: "test", AutoConfirm: true}, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)

		// Marie Dubois, Jean Martin, Paris, Lyon, Acme SA.
		assert.Equal(t, 5, store.Len())
		assert.Equal(t, 1, results[1].Reused)
	})
}
