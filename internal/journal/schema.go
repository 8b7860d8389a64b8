package journal

import (
	"database/sql"

	"codeberg.org/mutker/powerwallmon/internal/errors"
)

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS cycles (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp INTEGER NOT NULL,
            state TEXT NOT NULL,
            success INTEGER NOT NULL,
            error_code TEXT,
            detail TEXT
        );
        CREATE INDEX IF NOT EXISTS idx_cycles_timestamp ON cycles (timestamp)
    `)
	if err != nil {
		return errors.New().Wrap(ErrStorageInit, err)
	}

	return nil
}
