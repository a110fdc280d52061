package repositories

import (
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
)

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers give runs a stable, human-readable order (run #42) independent of their UUIDs.
func NextSequence(db *sql.DB, table string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	_, err = tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, errors.Wrap(err, "failed to increment sequence")
	}

	var sequence int
	err = tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get sequence value")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit sequence transaction")
	}

	return sequence, nil
}
