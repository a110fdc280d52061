package repositories

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

const runColumns = `id, sequence, operation, identity, outcome, total, failed, summary, started_at, finished_at, created_at, updated_at, deleted_at`

// RunRepository implements models.Repository[*models.Run] for the run journal.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run and its playlists with a generated ID and sequence
func (r *RunRepository) Create(run *models.Run) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return errors.Wrap(err, "failed to generate sequence")
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		run.ID(),
		run.Sequence(),
		string(run.Operation()),
		run.Identity(),
		string(run.Outcome()),
		run.Total(),
		run.Failed(),
		run.Summary(),
		run.StartedAt(),
		nullTime(run.FinishedAt()),
		run.CreatedAt(),
		run.UpdatedAt(),
		nullTime(run.DeletedAt()),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert run")
	}

	if err := insertPlaylists(tx, run); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit run")
}

// Get retrieves a run and its playlists by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(shared.ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadPlaylists(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Update writes a run's outcome and counts and replaces its playlists
func (r *RunRepository) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	now := time.Now().UTC()
	run.SetUpdatedAt(now)

	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		UPDATE runs
		SET outcome = ?, total = ?, failed = ?, summary = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := tx.Exec(query,
		string(run.Outcome()),
		run.Total(),
		run.Failed(),
		run.Summary(),
		nullTime(run.FinishedAt()),
		now,
		run.ID(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get affected rows")
	}
	if rows == 0 {
		return errors.Wrapf(shared.ErrNotFound, "run %s not found or already deleted", run.ID())
	}

	if _, err := tx.Exec(`DELETE FROM run_playlists WHERE run_id = ?`, run.ID()); err != nil {
		return errors.Wrap(err, "failed to clear run playlists")
	}
	if err := insertPlaylists(tx, run); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit run")
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	now := time.Now().UTC()

	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get affected rows")
	}
	if rows == 0 {
		return errors.Wrapf(shared.ErrNotFound, "run %s not found or already deleted", id)
	}

	return nil
}

// List retrieves runs matching the given criteria, newest first, excluding soft-deleted runs.
//
// Supported criteria: "identity" (string), "operation" (string or [models.Operation]), "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}

	if identity, ok := criteria["identity"].(string); ok && identity != "" {
		query += " AND identity = ?"
		args = append(args, identity)
	}

	switch op := criteria["operation"].(type) {
	case string:
		if op != "" {
			query += " AND operation = ?"
			args = append(args, op)
		}
	case models.Operation:
		query += " AND operation = ?"
		args = append(args, string(op))
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "row iteration error")
	}
	rows.Close()

	// Playlists are loaded after the cursor is closed so a single-connection pool cannot deadlock.
	for _, run := range runs {
		if err := r.loadPlaylists(run); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (r *RunRepository) loadPlaylists(run *models.Run) error {
	rows, err := r.db.Query(`
		SELECT position, source_id, destination_id, name, action, tracks, content_hash, partial
		FROM run_playlists
		WHERE run_id = ?
		ORDER BY position ASC
	`, run.ID())
	if err != nil {
		return errors.Wrap(err, "failed to query run playlists")
	}
	defer rows.Close()

	var playlists []models.RunPlaylist
	for rows.Next() {
		var p models.RunPlaylist
		if err := rows.Scan(&p.Position, &p.SourceID, &p.DestinationID, &p.Name, &p.Action, &p.Tracks, &p.ContentHash, &p.Partial); err != nil {
			return errors.Wrap(err, "failed to scan run playlist")
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "row iteration error")
	}

	run.SetPlaylists(playlists)
	return nil
}

func insertPlaylists(tx *sql.Tx, run *models.Run) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_playlists (run_id, position, source_id, destination_id, name, action, tracks, content_hash, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare run playlist insert")
	}
	defer stmt.Close()

	for _, p := range run.Playlists() {
		_, err := stmt.Exec(run.ID(), p.Position, p.SourceID, p.DestinationID, p.Name, p.Action, p.Tracks, p.ContentHash, p.Partial)
		if err != nil {
			return errors.Wrapf(err, "failed to insert run playlist %d", p.Position)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a [models.Run]. The raw error is returned
// so callers can tell [sql.ErrNoRows] apart.
func scanRun(row scanner) (*models.Run, error) {
	var (
		id         string
		sequence   int
		operation  string
		identity   string
		outcome    string
		total      int
		failed     int
		summary    string
		startedAt  time.Time
		finishedAt sql.NullTime
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &operation, &identity, &outcome, &total, &failed, &summary,
		&startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan run")
	}

	run := models.NewRun(models.Operation(operation), identity)
	run.SetID(id)
	run.SetSequence(sequence)
	run.Restore(models.Outcome(outcome), summary)
	run.SetCounts(total, failed)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if finishedAt.Valid {
		run.SetFinishedAt(&finishedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ models.Repository[*models.Run] = (*RunRepository)(nil)
