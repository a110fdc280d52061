// package formatter renders snapshots, operation reports and the run journal
// as plain text, Markdown, CSV and terminal tables
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// Format is an output format for snapshot rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// Formats lists the accepted format names.
func Formats() []string {
	return []string{string(FormatText), string(FormatMarkdown), string(FormatCSV)}
}

// ParseFormat maps a flag value onto a [Format]. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", errors.Wrapf(shared.ErrInvalidArgument, "unknown format %q (want one of %s)", s, strings.Join(Formats(), ", "))
	}
}

const likedSongs = "Liked Songs"

// SnapshotToCSV writes one row per track with columns: Playlist, Position, Track ID, Name, Artists.
// Liked songs follow the playlists under the "Liked Songs" playlist name.
func SnapshotToCSV(s *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Playlist", "Position", "Track ID", "Name", "Artists"}); err != nil {
		return nil, errors.Wrap(err, "failed to write CSV headers")
	}

	write := func(playlist string, tracks []models.TrackRef) error {
		for i, t := range tracks {
			record := []string{playlist, strconv.Itoa(i + 1), t.ProviderTrackID, t.Name, strings.Join(t.Artists, "; ")}
			if err := writer.Write(record); err != nil {
				return errors.Wrap(err, "failed to write CSV record")
			}
		}
		return nil
	}

	for _, p := range s.Playlists {
		if err := write(p.Name, p.Tracks); err != nil {
			return nil, err
		}
	}
	if err := write(likedSongs, s.LikedTracks); err != nil {
		return nil, err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, errors.Wrap(err, "CSV writer error")
	}
	return buf.Bytes(), nil
}

// SnapshotToMarkdown renders a snapshot as a Markdown document with one section per playlist.
func SnapshotToMarkdown(s *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	title := "Spotify snapshot"
	if s.SourceUser != "" {
		title = fmt.Sprintf("Spotify snapshot of %s", s.SourceUser)
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "_Generated %s_\n\n", s.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Playlists**: %d\n", len(s.Playlists))
	fmt.Fprintf(&buf, "**Tracks**: %d\n", s.TrackCount())
	fmt.Fprintf(&buf, "**Liked songs**: %d\n\n", len(s.LikedTracks))

	for _, p := range s.Playlists {
		fmt.Fprintf(&buf, "## %s\n\n", p.Name)

		if cover := coverURL(p.Images); cover != "" {
			fmt.Fprintf(&buf, "![Cover](%s)\n\n", cover)
		}
		if p.Description != "" {
			fmt.Fprintf(&buf, "**Description**: %s\n\n", p.Description)
		}

		fmt.Fprintf(&buf, "**Tracks**: %d\n", len(p.Tracks))
		fmt.Fprintf(&buf, "**Visibility**: %s\n", visibility(p.IsPublic, p.IsCollaborative))
		if p.Partial {
			buf.WriteString("**Partial**: some tracks could not be fetched\n")
		}
		buf.WriteString("\n")

		writeMarkdownTracks(&buf, p.Tracks)
	}

	if len(s.LikedTracks) > 0 {
		fmt.Fprintf(&buf, "## %s\n\n", likedSongs)
		writeMarkdownTracks(&buf, s.LikedTracks)
	}

	return buf.Bytes(), nil
}

func writeMarkdownTracks(buf *bytes.Buffer, tracks []models.TrackRef) {
	for i, t := range tracks {
		fmt.Fprintf(buf, "%d. %s\n", i+1, trackLabel(t))
	}
	if len(tracks) > 0 {
		buf.WriteString("\n")
	}
}

// SnapshotToText renders a snapshot as plain text.
func SnapshotToText(s *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	if s.SourceUser != "" {
		fmt.Fprintf(&buf, "Account: %s\n", s.SourceUser)
	}
	fmt.Fprintf(&buf, "Generated: %s\n", s.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Playlists: %d, tracks: %d, liked songs: %d\n", len(s.Playlists), s.TrackCount(), len(s.LikedTracks))

	for i, p := range s.Playlists {
		fmt.Fprintf(&buf, "\n%d. %s (%d tracks, %s)\n", i+1, p.Name, len(p.Tracks), visibility(p.IsPublic, p.IsCollaborative))
		if p.Description != "" {
			fmt.Fprintf(&buf, "   %s\n", p.Description)
		}
		for j, t := range p.Tracks {
			fmt.Fprintf(&buf, "   %d. %s\n", j+1, trackLabel(t))
		}
	}

	if len(s.LikedTracks) > 0 {
		fmt.Fprintf(&buf, "\n%s (%d)\n", likedSongs, len(s.LikedTracks))
		for j, t := range s.LikedTracks {
			fmt.Fprintf(&buf, "   %d. %s\n", j+1, trackLabel(t))
		}
	}

	return buf.Bytes(), nil
}

// WriteSnapshot renders s in format f to w.
func WriteSnapshot(w io.Writer, s *models.Snapshot, f Format) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatCSV:
		data, err = SnapshotToCSV(s)
	case FormatMarkdown:
		data, err = SnapshotToMarkdown(s)
	case FormatText, "":
		data, err = SnapshotToText(s)
	default:
		return errors.Wrapf(shared.ErrInvalidArgument, "unknown format %q", f)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}

func trackLabel(t models.TrackRef) string {
	name := t.Name
	if name == "" {
		name = t.ProviderTrackID
	}
	if len(t.Artists) == 0 {
		return name
	}
	return fmt.Sprintf("%s - %s", strings.Join(t.Artists, ", "), name)
}

func visibility(public, collaborative bool) string {
	switch {
	case collaborative:
		return "collaborative"
	case public:
		return "public"
	default:
		return "private"
	}
}

// coverURL picks the largest image, or the first when sizes are unknown.
func coverURL(images []models.ImageRef) string {
	best := ""
	area := -1
	for _, img := range images {
		a := 0
		if img.Width != nil && img.Height != nil {
			a = *img.Width * *img.Height
		}
		if a > area {
			best, area = img.URL, a
		}
	}
	return best
}
