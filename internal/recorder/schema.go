package recorder

import (
	"database/sql"

	"codeberg.org/mutker/encoderctl/internal/errors"
)

// initSchema initializes the database schema for recorded samples.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS samples (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_started INTEGER NOT NULL,
            time_s REAL NOT NULL,
            pulses INTEGER NOT NULL,
            delta INTEGER NOT NULL,
            force_kg REAL
        );
        CREATE INDEX IF NOT EXISTS idx_samples_session
            ON samples (session_started, time_s)
    `)
	if err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}

func insertSampleSQL() string {
	return `
        INSERT INTO samples (
            session_started, time_s, pulses, delta, force_kg
        ) VALUES (?, ?, ?, ?, ?)
    `
}
