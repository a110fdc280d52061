package repositories

import (
	"database/sql"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newImportRun() *models.Run {
	run := models.NewRun(models.OperationImport, "alice")
	run.AddPlaylist(models.RunPlaylist{SourceID: "src1", DestinationID: "dst1", Name: "Road Trip", Action: "created", Tracks: 3, ContentHash: "abc"})
	run.AddPlaylist(models.RunPlaylist{SourceID: "src2", DestinationID: "dst2", Name: "Mix", Action: "created", Tracks: 1, Partial: true})
	return run
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "runs")
		if err != nil {
			t.Fatalf("NextSequence: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected an error for a table without a sequence")
	}
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := newImportRun()

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID() == "" {
			t.Error("run ID should be set after creation")
		}
		if run.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", run.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := newImportRun()
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}

		if got.Operation() != models.OperationImport || got.Identity() != "alice" {
			t.Errorf("unexpected run %s/%s", got.Operation(), got.Identity())
		}
		if got.Outcome() != models.OutcomeRunning {
			t.Errorf("expected running, got %s", got.Outcome())
		}
		if got.FinishedAt() != nil {
			t.Error("an open run has no finish time")
		}
		if !got.StartedAt().Equal(run.StartedAt()) {
			t.Errorf("expected started_at %v, got %v", run.StartedAt(), got.StartedAt())
		}

		playlists := got.Playlists()
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if playlists[0] != run.Playlists()[0] || playlists[1] != run.Playlists()[1] {
			t.Errorf("playlists did not round trip: %+v", playlists)
		}
		if playlists[1].Position != 2 || !playlists[1].Partial {
			t.Errorf("unexpected second playlist %+v", playlists[1])
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := models.NewRun(models.OperationExport, "alice")
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		run.AddPlaylist(models.RunPlaylist{SourceID: "p1", Name: "One", Action: "exported", Tracks: 10})
		run.SetCounts(4, 1)
		run.Finish(models.OutcomePartial, "succeeded with 1 item failures (see report)")

		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Outcome() != models.OutcomePartial {
			t.Errorf("expected partial, got %s", got.Outcome())
		}
		if got.Total() != 4 || got.Failed() != 1 {
			t.Errorf("expected counts 4/1, got %d/%d", got.Total(), got.Failed())
		}
		if got.Summary() != run.Summary() {
			t.Errorf("expected summary %q, got %q", run.Summary(), got.Summary())
		}
		if got.FinishedAt() == nil {
			t.Error("finished_at should be set")
		}
		if len(got.Playlists()) != 1 || got.Playlists()[0].Tracks != 10 {
			t.Errorf("unexpected playlists %+v", got.Playlists())
		}

		if err := repo.Update(run); err != nil {
			t.Fatalf("second update: %v", err)
		}
		got, _ = repo.Get(run.ID())
		if len(got.Playlists()) != 1 {
			t.Errorf("update should replace playlists, got %d", len(got.Playlists()))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := newImportRun()
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if _, err := repo.Get(run.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found after delete, got %v", err)
		}
		if err := repo.Delete(run.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found deleting twice, got %v", err)
		}
		if err := repo.Update(run); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found updating a deleted run, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		runs := []*models.Run{
			models.NewRun(models.OperationExport, "alice"),
			models.NewRun(models.OperationImport, "bob"),
			models.NewRun(models.OperationErase, "alice"),
			newImportRun(),
		}
		for _, run := range runs {
			if err := repo.Create(run); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}
		if err := repo.Delete(runs[2].ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}

		tc := []struct {
			name     string
			criteria map[string]any
			want     []int
		}{
			{"all newest first", map[string]any{}, []int{4, 2, 1}},
			{"by identity", map[string]any{"identity": "alice"}, []int{4, 1}},
			{"by operation", map[string]any{"operation": models.OperationImport}, []int{4, 2}},
			{"by operation string", map[string]any{"operation": "export"}, []int{1}},
			{"limit", map[string]any{"limit": 2}, []int{4, 2}},
			{"nil criteria", nil, []int{4, 2, 1}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.List(tt.criteria)
				if err != nil {
					t.Fatalf("failed to list runs: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("expected %d runs, got %d", len(tt.want), len(got))
				}
				for i, seq := range tt.want {
					if got[i].Sequence() != seq {
						t.Errorf("run %d: expected sequence %d, got %d", i, seq, got[i].Sequence())
					}
				}
			})
		}

		got, _ := repo.List(map[string]any{"limit": 1})
		if len(got[0].Playlists()) != 2 {
			t.Errorf("listed runs should carry their playlists, got %d", len(got[0].Playlists()))
		}
	})

	t.Run("Errors", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		if _, err := repo.Get("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}

		invalid := models.NewRun("sync", "alice")
		if err := repo.Create(invalid); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected validation error, got %v", err)
		}

		missing := models.NewRun(models.OperationExport, "alice")
		missing.SetID("never-created")
		if err := repo.Update(missing); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}
