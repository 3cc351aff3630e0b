package persistence

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrationNames_SortedAndEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])

	content, err := fs.ReadFile(migrationFiles, "migrations/"+names[0])
	require.NoError(t, err)
	for _, table := range []string{"companies", "users", "tickets", "messages", "ticket_history"} {
		assert.Contains(t, string(content), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestRunMigrations_SkipsWithoutPool(t *testing.T) {
	assert.NoError(t, RunMigrations(context.Background(), nil, zap.NewNop()))
}
