package postgres

import (
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	ms, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	assert.Equal(t, "0001_init", ms[0].Version)
	var prev int64
	for _, m := range ms {
		v, err := goose.NumericComponent(m.Version + ".sql")
		require.NoError(t, err, m.Version)
		assert.Greater(t, v, prev, "versions must increase: %s", m.Version)
		prev = v
	}
	for _, table := range []string{"users", "patients", "outbox_events", "audit_logs"} {
		assert.Contains(t, ms[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestMigrationsCarryGooseDirectives(t *testing.T) {
	ms, err := Migrations()
	require.NoError(t, err)
	for _, m := range ms {
		assert.True(t, strings.HasPrefix(m.SQL, "-- +goose Up"), m.Version)
		assert.Contains(t, m.SQL, "-- +goose Down", m.Version)
	}
}
