package library

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voilenlp/voile/model"
)

const testTheme = `
theme: test
first_names:
  male: [Paul, Marc]
  female: [Anne, Claire]
  neutral: [Lou]
last_names: [Fontaine, Mercier]
locations: [Valbonne]
organizations: [Société Horizon]
`

func loadTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Load(strings.NewReader(testTheme))
	require.NoError(t, err)
	return lib
}

func TestLoad(t *testing.T) {
	t.Run("Valid theme file", func(t *testing.T) {
		lib := loadTestLibrary(t)
		assert.Equal(t, "test", lib.Theme)
		assert.Equal(t, 2, lib.Available(PoolFirstMale))
		assert.Equal(t, 2, lib.Available(PoolLast))
		assert.Equal(t, 1, lib.Available(PoolLocation))
	})

	t.Run("Missing theme name", func(t *testing.T) {
		_, err := Load(strings.NewReader("first_names: {male: [Paul]}"))
		assert.Error(t, err)
	})

	t.Run("Embedded themes load", func(t *testing.T) {
		for _, name := range Themes() {
			lib, err := LoadTheme(name)
			require.NoError(t, err, "theme %s should load", name)
			assert.Equal(t, name, lib.Theme)
			assert.Greater(t, lib.Available(PoolLast), 0)
		}
	})

	t.Run("Unknown embedded theme", func(t *testing.T) {
		_, err := LoadTheme("nope")
		assert.ErrorIs(t, err, ErrUnknownTheme)
	})
}

func TestDraw(t *testing.T) {
	t.Run("Draw skips excluded values", func(t *testing.T) {
		lib := loadTestLibrary(t)
		v, err := lib.Draw(PoolLast, map[string]bool{"Fontaine": true})
		require.NoError(t, err)
		assert.Equal(t, "Mercier", v)
	})

	t.Run("Draw never repeats a reserved value", func(t *testing.T) {
		lib := loadTestLibrary(t)
		first, err := lib.Draw(PoolLast, nil)
		require.NoError(t, err)
		second, err := lib.Draw(PoolLast, nil)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("Exhausted pool returns typed error", func(t *testing.T) {
		lib := loadTestLibrary(t)
		_, err := lib.Draw(PoolLocation, nil)
		require.NoError(t, err)
		_, err = lib.Draw(PoolLocation, nil)
		assert.ErrorIs(t, err, ErrLibraryExhausted)
	})

	t.Run("Unknown pool", func(t *testing.T) {
		lib := loadTestLibrary(t)
		_, err := lib.Draw(PoolKey("bogus"), nil)
		assert.Error(t, err)
	})
}

func TestDrawFirst(t *testing.T) {
	t.Run("Female gender never draws from the male pool", func(t *testing.T) {
		lib := loadTestLibrary(t)
		seen := make(map[string]bool)
		for {
			v, err := lib.DrawFirst(model.GenderFemale, nil)
			if err != nil {
				assert.ErrorIs(t, err, ErrLibraryExhausted)
				break
			}
			seen[v] = true
		}
		assert.NotContains(t, seen, "Paul")
		assert.NotContains(t, seen, "Marc")
		assert.Contains(t, seen, "Anne")
		assert.Contains(t, seen, "Lou", "neutral pool serves as fallback")
	})

	t.Run("Unknown gender draws from combined pools", func(t *testing.T) {
		lib := loadTestLibrary(t)
		var values []string
		for i := 0; i < 5; i++ {
			v, err := lib.DrawFirst(model.GenderUnknown, nil)
			require.NoError(t, err)
			values = append(values, v)
		}
		_, err := lib.DrawFirst(model.GenderUnknown, nil)
		assert.ErrorIs(t, err, ErrLibraryExhausted)
		assert.Len(t, values, 5)
	})
}

func TestReservations(t *testing.T) {
	t.Run("Release returns the value to the pool", func(t *testing.T) {
		lib := loadTestLibrary(t)
		v, err := lib.Draw(PoolLocation, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, lib.Available(PoolLocation))

		lib.Release(v)
		assert.Equal(t, 1, lib.Available(PoolLocation))

		again, err := lib.Draw(PoolLocation, nil)
		require.NoError(t, err)
		assert.Equal(t, v, again)
	})

	t.Run("Commit marks the value used", func(t *testing.T) {
		lib := loadTestLibrary(t)
		v, err := lib.Draw(PoolLocation, nil)
		require.NoError(t, err)

		lib.Commit(v)
		assert.Equal(t, 0, lib.Available(PoolLocation))
		assert.InDelta(t, 1.0, lib.Usage(PoolLocation), 0.001)

		// Releasing after commit must not resurrect the value
		lib.Release(v)
		assert.Equal(t, 0, lib.Available(PoolLocation))
	})

	t.Run("ReleaseAll restores pool sizes from session start", func(t *testing.T) {
		lib := loadTestLibrary(t)
		before := lib.Available(PoolLast) + lib.Available(PoolFirstFemale)

		_, err := lib.Draw(PoolLast, nil)
		require.NoError(t, err)
		_, err = lib.DrawFirst(model.GenderFemale, nil)
		require.NoError(t, err)

		lib.ReleaseAll()
		after := lib.Available(PoolLast) + lib.Available(PoolFirstFemale)
		assert.Equal(t, before, after)
	})
}

func TestUsage(t *testing.T) {
	t.Run("Usage is zero before any commit", func(t *testing.T) {
		lib := loadTestLibrary(t)
		assert.Zero(t, lib.Usage(PoolLast))
	})

	t.Run("Usage counts committed values only", func(t *testing.T) {
		lib := loadTestLibrary(t)
		v, err := lib.Draw(PoolLast, nil)
		require.NoError(t, err)
		assert.Zero(t, lib.Usage(PoolLast), "reservation is not usage")
		lib.Commit(v)
		assert.InDelta(t, 0.5, lib.Usage(PoolLast), 0.001)
	})
}
