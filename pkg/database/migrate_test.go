package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])

	sql, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{"users", "courses", "enrollments", "live_classes", "attendances", "reminders", "email_logs"} {
		assert.Contains(t, string(sql), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.True(t, strings.Contains(string(sql), "UNIQUE (live_class_id, learner_id)"))
	assert.True(t, strings.Contains(string(sql), "UNIQUE (live_class_id, learner_id, type)"))
}
