package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voilenlp/voile/core/session"
	"github.com/voilenlp/voile/model"
)

func testSession() *session.Session {
	group := &model.EntityGroup{Type: model.EntityTypePerson}
	group.Add(model.DetectedEntity{Text: "Marie Dubois", Type: model.EntityTypePerson, StartPos: 0, EndPos: 12})
	group.Add(model.DetectedEntity{Text: "Mme Dubois", Type: model.EntityTypePerson, StartPos: 40, EndPos: 50})
	return session.New([]*model.EntityReview{{
		ID:                 uuid.New(),
		Group:              group,
		State:              model.ReviewPending,
		SuggestedPseudonym: "Camille Fontaine",
	}})
}

func nextAction(t *testing.T, input string) (session.Action, string) {
	t.Helper()
	var out bytes.Buffer
	reviewer := NewReviewer(strings.NewReader(input), &out)
	action, err := reviewer.NextAction(testSession())
	require.NoError(t, err)
	return action, out.String()
}

func TestReviewerCommands(t *testing.T) {
	t.Run("Single letter commands map to actions", func(t *testing.T) {
		for input, expected := range map[string]session.ActionType{
			"c\n": session.ActionConfirm,
			"r\n": session.ActionReject,
			"u\n": session.ActionUndo,
			"C\n": session.ActionAcceptAllType,
			"R\n": session.ActionRejectAllType,
			"n\n": session.ActionNext,
			"b\n": session.ActionPrev,
			"o\n": session.ActionNextOccurrence,
		} {
			action, _ := nextAction(t, input)
			assert.Equal(t, expected, action.Type)
		}
	})

	t.Run("Modify prompts for the corrected text", func(t *testing.T) {
		action, _ := nextAction(t, "m\nMarie Dubois-Lemaire\n")
		assert.Equal(t, session.ActionModify, action.Type)
		assert.Equal(t, "Marie Dubois-Lemaire", action.Text)
	})

	t.Run("Pseudonym change prompts for the pseudonym", func(t *testing.T) {
		s := testSession()
		_, err := s.Apply(session.Action{Type: session.ActionConfirm})
		require.NoError(t, err)

		var out bytes.Buffer
		reviewer := NewReviewer(strings.NewReader("p\nIris Delcourt\n"), &out)
		action, err := reviewer.NextAction(s)
		require.NoError(t, err)
		assert.Equal(t, session.ActionChangePseudonym, action.Type)
		assert.Equal(t, "Iris Delcourt", action.Pseudonym)
	})

	t.Run("Pseudonym change on a pending review prints a hint", func(t *testing.T) {
		action, out := nextAction(t, "p\nc\n")
		assert.Equal(t, session.ActionConfirm, action.Type)
		assert.Contains(t, out, "Confirm or modify the entity first")
	})

	t.Run("Add prompts for text and type", func(t *testing.T) {
		action, _ := nextAction(t, "a\nSophie Bernard\nperson\n")
		assert.Equal(t, session.ActionAdd, action.Type)
		assert.Equal(t, "Sophie Bernard", action.Text)
		assert.Equal(t, model.EntityTypePerson, action.EntityType)
	})

	t.Run("Quit requires confirmation", func(t *testing.T) {
		action, _ := nextAction(t, "q\ny\n")
		assert.Equal(t, session.ActionQuit, action.Type)

		action, _ = nextAction(t, "q\nn\nc\n")
		assert.Equal(t, session.ActionConfirm, action.Type)
	})

	t.Run("Unknown commands are not consumed as actions", func(t *testing.T) {
		action, out := nextAction(t, "x\nc\n")
		assert.Equal(t, session.ActionConfirm, action.Type)
		assert.Contains(t, out, "Unknown command")
	})

	t.Run("Context shows entity, variants and suggestion", func(t *testing.T) {
		_, out := nextAction(t, "c\n")
		assert.Contains(t, out, "Marie Dubois")
		assert.Contains(t, out, "Mme Dubois")
		assert.Contains(t, out, "Camille Fontaine")
	})
}
