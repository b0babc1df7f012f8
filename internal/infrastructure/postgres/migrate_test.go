package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "migrations/0001_init.sql", migrations[0].name)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].name, migrations[i].name, "migrations run in name order")
	}

	schema := migrations[0].sql
	for _, table := range []string{"users", "outbox"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestMigrationsAreRerunnable(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)

	for _, m := range migrations {
		for _, stmt := range strings.Split(m.sql, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			upper := strings.ToUpper(stmt)
			if strings.HasPrefix(upper, "CREATE") {
				assert.Contains(t, upper, "IF NOT EXISTS", "%s: %s", m.name, stmt)
			}
		}
	}
}
