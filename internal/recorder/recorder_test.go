package recorder_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/encoderctl/internal/buffer"
	"codeberg.org/mutker/encoderctl/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresValidConfig(t *testing.T) {
	_, err := recorder.New(recorder.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder_invalid_db_path")

	cfg := recorder.DefaultConfig(filepath.Join(t.TempDir(), "sessions.db"))
	cfg.BatchSize = 0
	_, err = recorder.New(cfg)
	require.Error(t, err)
}

func TestRecordAndCloseFlushes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	r, err := recorder.New(recorder.DefaultConfig(dbPath))
	require.NoError(t, err)

	force := 1.5
	samples := []buffer.Sample{
		{Time: 0, Pulses: 100, Delta: 0, Force: &force},
		{Time: 0.1, Pulses: 150, Delta: 50},
		{Time: 0.2, Pulses: 140, Delta: -10},
	}
	for _, s := range samples {
		require.NoError(t, r.Record(s))
	}

	// Close must flush the pending batch exactly once.
	require.NoError(t, r.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count))
	assert.Equal(t, 3, count)

	var pulses, delta int
	var forceKg sql.NullFloat64
	require.NoError(t, db.QueryRow(
		"SELECT pulses, delta, force_kg FROM samples ORDER BY id LIMIT 1",
	).Scan(&pulses, &delta, &forceKg))
	assert.Equal(t, 100, pulses)
	assert.Equal(t, 0, delta)
	require.True(t, forceKg.Valid)
	assert.InDelta(t, 1.5, forceKg.Float64, 1e-9)

	require.NoError(t, db.QueryRow(
		"SELECT pulses, delta, force_kg FROM samples ORDER BY id DESC LIMIT 1",
	).Scan(&pulses, &delta, &forceKg))
	assert.Equal(t, 140, pulses)
	assert.Equal(t, -10, delta)
	assert.False(t, forceKg.Valid, "absent force is stored as NULL, not zero")
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	cfg := recorder.DefaultConfig(dbPath)
	cfg.BatchSize = 2
	r, err := recorder.New(cfg)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Record(buffer.Sample{Pulses: 1}))
	require.NoError(t, r.Record(buffer.Sample{Pulses: 2}))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count))
	assert.Equal(t, 2, count, "reaching the batch size flushes synchronously")
}
