package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	migrations, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "0001_create_products", migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS products")
	assert.Len(t, migrations[0].Checksum, 64)
}

func TestLoadFrom_SortsAndIgnoresOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql":  {Data: []byte("SELECT 2;")},
		"m/0001_a.sql":  {Data: []byte("SELECT 1;")},
		"m/README.md":   {Data: []byte("notes")},
		"m/0003_c.sql~": {Data: []byte("backup")},
	}
	migrations, err := loadFrom(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_a", migrations[0].Version)
	assert.Equal(t, "0002_b", migrations[1].Version)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestPlan(t *testing.T) {
	ms := []Migration{
		{Version: "0001_a", Checksum: "aaa"},
		{Version: "0002_b", Checksum: "bbb"},
		{Version: "0003_c", Checksum: "ccc"},
	}

	t.Run("fresh database", func(t *testing.T) {
		pending, err := plan(ms, map[string]string{})
		require.NoError(t, err)
		assert.Len(t, pending, 3)
	})

	t.Run("partially applied", func(t *testing.T) {
		pending, err := plan(ms, map[string]string{"0001_a": "aaa", "0002_b": ""})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "0003_c", pending[0].Version)
	})

	t.Run("edited after apply", func(t *testing.T) {
		_, err := plan(ms, map[string]string{"0001_a": "zzz"})
		require.ErrorContains(t, err, "0001_a changed")
	})
}
