package voile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voilenlp/voile/core/library"
	"github.com/voilenlp/voile/database"
	"github.com/voilenlp/voile/model"
)

func TestThemes(t *testing.T) {
	themes := Themes()
	assert.Contains(t, themes, "neutral")
	assert.Contains(t, themes, "mythologie")
}

func TestNew(t *testing.T) {
	t.Run("Unknown theme is rejected", func(t *testing.T) {
		_, err := New(database.NewMemoryStore(), "nonexistent")
		assert.ErrorIs(t, err, library.ErrUnknownTheme)
	})

	t.Run("Defaults to the regex detector", func(t *testing.T) {
		v, err := New(database.NewMemoryStore(), "neutral")
		require.NoError(t, err)
		defer v.Close()
		assert.NotNil(t, v.Detector)
	})
}

func TestProcessDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("End to end with the regex detector", func(t *testing.T) {
		v, err := New(database.NewMemoryStore(), "neutral")
		require.NoError(t, err)
		defer v.Close()

		doc := &model.Document{
			Title:   "rapport",
			Content: "Mme Marie Dubois a rencontré M. Jean Martin hier.",
		}
		result, err := v.ProcessDocument(ctx, doc, model.ProcessConfig{Theme: "neutral", AutoConfirm: true}, nil)
		require.NoError(t, err)

		assert.NotContains(t, result.Output, "Marie Dubois")
		assert.NotContains(t, result.Output, "Jean Martin")
		assert.Contains(t, result.Output, "Mme ")
		assert.Contains(t, result.Output, "M. ")
		assert.Equal(t, 2, result.Created)
	})

	t.Run("Empty content is rejected", func(t *testing.T) {
		v, err := New(database.NewMemoryStore(), "neutral")
		require.NoError(t, err)
		defer v.Close()

		_, err = v.ProcessDocument(ctx, &model.Document{Title: "vide"}, model.DefaultProcessConfig(), nil)
		assert.Error(t, err)
	})

	t.Run("Local store persists mappings across instances", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mappings.db")
		config := model.ProcessConfig{Theme: "neutral", AutoConfirm: true}
		doc := func() *model.Document {
			return &model.Document{Title: "rapport", Content: "Mme Marie Dubois est présente."}
		}

		v1, err := NewLocal(path, []byte("passphrase"), "neutral")
		require.NoError(t, err)
		first, err := v1.ProcessDocument(ctx, doc(), config, nil)
		require.NoError(t, err)
		require.NoError(t, v1.Close())
		require.Len(t, first.Assignments, 1)

		v2, err := NewLocal(path, []byte("passphrase"), "neutral")
		require.NoError(t, err)
		defer v2.Close()
		second, err := v2.ProcessDocument(ctx, doc(), config, nil)
		require.NoError(t, err)

		require.Len(t, second.Assignments, 1)
		assert.Equal(t, first.Assignments[0].PseudonymFull, second.Assignments[0].PseudonymFull)
		assert.Equal(t, 1, second.Reused)
	})
}

func TestUsage(t *testing.T) {
	ctx := context.Background()

	v, err := New(database.NewMemoryStore(), "neutral")
	require.NoError(t, err)
	defer v.Close()

	usage := v.Usage()
	assert.Zero(t, usage[library.PoolLast])

	_, err = v.ProcessDocument(ctx, &model.Document{
		Title:   "rapport",
		Content: "Mme Marie Dubois est présente.",
	}, model.ProcessConfig{Theme: "neutral", AutoConfirm: true}, nil)
	require.NoError(t, err)

	assert.Greater(t, v.Usage()[library.PoolLast], 0.0)
}
