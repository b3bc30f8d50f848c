package sql

import (
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMappingsSql(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Load mappings SQL functions", func(t *testing.T) {
		err := LoadMappingsSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range MappingsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})

	t.Run("Loading is idempotent", func(t *testing.T) {
		err := LoadMappingsSql(db.Instance, false)
		assert.NoError(t, err)

		err = LoadMappingsSql(db.Instance, true)
		assert.NoError(t, err)
	})

	t.Run("Functions are callable after init", func(t *testing.T) {
		err := LoadMappingsSql(db.Instance, true)
		require.NoError(t, err)

		_, err = db.Instance.Exec(`SELECT init_mappings();`)
		assert.NoError(t, err)

		var count int
		err = db.Instance.QueryRow(`SELECT count(*) FROM mappings;`).Scan(&count)
		assert.NoError(t, err)
		assert.Zero(t, count)
	})
}
