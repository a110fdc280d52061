package formatter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
	th "github.com/desertthunder/spotsync/internal/testing"
)

func intp(v int) *int { return &v }

func testSnapshot() *models.Snapshot {
	s := models.NewSnapshot("alice")
	s.GeneratedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Playlists = []models.PlaylistRecord{
		{
			ProviderPlaylistID: "pl-1",
			Name:               "Road Trip",
			Description:        "Songs for the drive",
			IsPublic:           true,
			Tracks: []models.TrackRef{
				{ProviderTrackID: "t1", Name: "Song One", Artists: []string{"Artist One"}},
				{ProviderTrackID: "t2", Name: "Song, Two", Artists: []string{"A", "B"}},
			},
			Images: []models.ImageRef{
				{URL: "https://image-cdn.test/small", Width: intp(60), Height: intp(60)},
				{URL: "https://image-cdn.test/large", Width: intp(640), Height: intp(640)},
			},
		},
		{
			ProviderPlaylistID: "pl-2",
			Name:               "Shared Jams",
			IsCollaborative:    true,
			Partial:            true,
			Tracks:             []models.TrackRef{{ProviderTrackID: "t3"}},
		},
	}
	s.LikedTracks = []models.TrackRef{{ProviderTrackID: "t9", Name: "Liked", Artists: []string{"Someone"}}}
	return s
}

func TestSnapshotRenderers(t *testing.T) {
	t.Run("SnapshotToCSV", func(t *testing.T) {
		data, err := SnapshotToCSV(testSnapshot())
		if err != nil {
			t.Fatalf("SnapshotToCSV failed: %v", err)
		}

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 5 {
			t.Fatalf("expected header and 4 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "Playlist,Position,Track ID,Name,Artists" {
			t.Errorf("unexpected headers %v", records[0])
		}
		if records[2][3] != "Song, Two" || records[2][4] != "A; B" {
			t.Errorf("unexpected second row %v", records[2])
		}
		if records[4][0] != "Liked Songs" || records[4][2] != "t9" {
			t.Errorf("liked songs should come last, got %v", records[4])
		}
	})

	t.Run("SnapshotToMarkdown", func(t *testing.T) {
		data, err := SnapshotToMarkdown(testSnapshot())
		if err != nil {
			t.Fatalf("SnapshotToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Spotify snapshot of alice",
			"_Generated 2025-03-01T12:00:00Z_",
			"## Road Trip",
			"![Cover](https://image-cdn.test/large)",
			"**Description**: Songs for the drive",
			"**Visibility**: public",
			"1. Artist One - Song One",
			"2. A, B - Song, Two",
			"**Visibility**: collaborative",
			"**Partial**",
			"1. t3",
			"## Liked Songs",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("SnapshotToText", func(t *testing.T) {
		data, err := SnapshotToText(testSnapshot())
		if err != nil {
			t.Fatalf("SnapshotToText failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "Playlists: 2, tracks: 3, liked songs: 1") {
			t.Errorf("text missing counts, got:\n%s", output)
		}
		if !strings.Contains(output, "1. Road Trip (2 tracks, public)") {
			t.Errorf("text missing first playlist, got:\n%s", output)
		}
		if !strings.Contains(output, "Liked Songs (1)") {
			t.Errorf("text missing liked songs, got:\n%s", output)
		}
	})

	t.Run("empty snapshot", func(t *testing.T) {
		s := models.NewSnapshot("")
		data, err := SnapshotToMarkdown(s)
		if err != nil {
			t.Fatalf("SnapshotToMarkdown failed: %v", err)
		}
		if !strings.HasPrefix(string(data), "# Spotify snapshot\n") {
			t.Errorf("unexpected title in %q", data)
		}
		if strings.Contains(string(data), "Liked Songs") {
			t.Error("no liked section expected for an empty snapshot")
		}
	})
}

func TestWriteSnapshot(t *testing.T) {
	tc := []struct {
		format Format
		want   string
	}{
		{FormatText, "Account: alice"},
		{FormatMarkdown, "## Road Trip"},
		{FormatCSV, "Playlist,Position"},
	}

	for _, tt := range tc {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteSnapshot(&buf, testSnapshot(), tt.format); err != nil {
				t.Fatalf("WriteSnapshot failed: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output", tt.want)
			}
		})
	}

	t.Run("write errors", func(t *testing.T) {
		if err := WriteSnapshot(&th.FWriter{}, testSnapshot(), FormatText); err == nil {
			t.Error("expected an error from a failing writer")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		err := WriteSnapshot(&bytes.Buffer{}, testSnapshot(), Format("pdf"))
		if !cerrors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tc := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatText, false},
		{"TEXT", FormatText, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{" csv ", FormatCSV, false},
		{"xml", "", true},
	}

	for _, tt := range tc {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTables(t *testing.T) {
	t.Run("PlaylistTable", func(t *testing.T) {
		public := true
		playlists := []services.SpotifySimplePlaylist{
			{ID: "pl-1", Name: "Road Trip", Public: &public, Owner: services.Owner{ID: "alice-id", DisplayName: "Alice"}},
			{ID: "pl-2", Name: "Shared Jams", Collaborative: true, Owner: services.Owner{ID: "carol-id"}},
		}
		playlists[0].Tracks.Total = 1234

		output := PlaylistTable(playlists)
		for _, want := range []string{"Road Trip", "1,234", "public", "Alice", "Shared Jams", "collaborative", "carol-id"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("ReportText", func(t *testing.T) {
		start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		r := &tasks.Report{
			Operation:  models.OperationImport,
			Identity:   "bob",
			StartedAt:  start,
			FinishedAt: start.Add(1500 * time.Millisecond),
			Playlists: []tasks.PlaylistResult{
				{SourceID: "pl-1", DestinationID: "new-1", Name: "Road Trip", Action: "created", Tracks: 3},
				{SourceID: "pl-2", DestinationID: "new-2", Name: "Mix", Action: "created", Tracks: 100, Partial: true},
			},
			Liked:   2,
			Skipped: 1,
			Items:   6,
			Failures: []tasks.Failure{
				{Phase: tasks.AddTracks, Playlist: "Mix", Batch: 2, Err: errors.New("boom")},
			},
		}

		output := ReportText(r)
		for _, want := range []string{
			"import for bob: succeeded with 1 item failures (see report)",
			"items: 6, failures: 1, took 1.5s",
			"Skipped 1 entries",
			"created (partial)",
			"new-2",
			"add_tracks: Mix batch 2: boom",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("report missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("ErasePlanText", func(t *testing.T) {
		plan := &tasks.ErasePlan{
			Identity:     "alice",
			Playlists:    []tasks.PlannedRemoval{{ID: "pl-1", Name: "Mine", Owned: true}, {ID: "pl-2", Name: "Theirs"}},
			IncludeLiked: true,
			Token:        "deadbeef",
		}
		output := ErasePlanText(plan)
		for _, want := range []string{"Mine (deleted)", "Theirs (unfollowed)", "every liked song", "Confirmation token: deadbeef"} {
			if !strings.Contains(output, want) {
				t.Errorf("plan missing %q:\n%s", want, output)
			}
		}

		empty := ErasePlanText(&tasks.ErasePlan{Identity: "alice"})
		if !strings.Contains(empty, "Nothing to erase") {
			t.Errorf("unexpected empty plan output %q", empty)
		}
	})

	t.Run("HistoryTable", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		run := models.NewRun(models.OperationExport, "alice")
		run.SetSequence(7)
		run.SetStartedAt(now.Add(-3 * time.Hour))
		run.SetCounts(12000, 1)
		run.Finish(models.OutcomePartial, "succeeded with 1 item failures (see report)")

		output := HistoryTable([]*models.Run{run}, now)
		for _, want := range []string{"7", "export", "alice", "partial", "12,000", "3 hours ago"} {
			if !strings.Contains(output, want) {
				t.Errorf("history missing %q:\n%s", want, output)
			}
		}
	})
}
