package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"002_chat.sql":   {Data: []byte("SELECT 2;")},
		"001_init.sql":   {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("docs")},
		"010_index.sql":  {Data: []byte("SELECT 10;")},
		"sub/003_x.sql":  {Data: []byte("SELECT 3;")},
	}

	files, err := migrationFiles(fsys, ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_chat.sql", "010_index.sql"}, files)
}

func TestMigrationFiles_EmbeddedSQLite(t *testing.T) {
	files, err := migrationFiles(sqliteMigrations, "migrations/sqlite")
	require.NoError(t, err)
	assert.Contains(t, files, "migrations/sqlite/001_init.sql")
}
