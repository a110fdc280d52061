// Package selection turns a user's subset expression into the set of playlists an operation acts on.
//
// Grammar (comma separated, whitespace insensitive):
//
//	3        the third playlist in listing order (1-based)
//	2-5      an inclusive range
//	all      every playlist
//	public   playlists that were public when listed
//	private  playlists that were not
//
// Terms are unioned. Whether liked songs are included is a separate flag.
package selection

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
)

// Playlist is the part of a listed playlist the grammar looks at.
type Playlist struct {
	ID     string
	Name   string
	Public bool
}

// Error is a malformed or out-of-range expression. It unwraps to [shared.ErrSelection].
type Error struct {
	Expr   string
	Term   string
	Reason string
}

func (e *Error) Error() string {
	if e.Term == "" {
		return fmt.Sprintf("invalid selection %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("invalid selection %q: term %q: %s", e.Expr, e.Term, e.Reason)
}

func (e *Error) Unwrap() error { return shared.ErrSelection }

// Set is a resolved selection: a set of playlist ids and the liked-songs flag.
type Set struct {
	PlaylistIDs  map[string]struct{}
	IncludeLiked bool
}

// NewSet builds a [Set] from ids.
func NewSet(includeLiked bool, ids ...string) Set {
	s := Set{PlaylistIDs: make(map[string]struct{}, len(ids)), IncludeLiked: includeLiked}
	for _, id := range ids {
		s.PlaylistIDs[id] = struct{}{}
	}
	return s
}

// Contains reports whether the playlist id is selected.
func (s Set) Contains(id string) bool {
	_, ok := s.PlaylistIDs[id]
	return ok
}

// Len is the number of selected playlists.
func (s Set) Len() int { return len(s.PlaylistIDs) }

// Empty reports whether the set selects nothing at all, playlists or likes.
func (s Set) Empty() bool { return len(s.PlaylistIDs) == 0 && !s.IncludeLiked }

// IDs returns the selected ids, sorted.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s.PlaylistIDs))
	for id := range s.PlaylistIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Select implements [Selector], keeping only the ids that are available.
func (s Set) Select(available []Playlist) (Set, error) {
	out := NewSet(s.IncludeLiked)
	for _, p := range available {
		if s.Contains(p.ID) {
			out.PlaylistIDs[p.ID] = struct{}{}
		}
	}
	return out, nil
}

// Selector resolves against the playlists an operation has just listed.
type Selector interface {
	Select(available []Playlist) (Set, error)
}

// Expression is a [Selector] backed by the grammar.
type Expression struct {
	Expr         string
	IncludeLiked bool
}

// All selects every playlist.
func All(includeLiked bool) Expression {
	return Expression{Expr: "all", IncludeLiked: includeLiked}
}

// Select implements [Selector].
func (e Expression) Select(available []Playlist) (Set, error) {
	s, err := Resolve(e.Expr, available)
	if err != nil {
		return Set{}, err
	}
	s.IncludeLiked = e.IncludeLiked
	return s, nil
}

// Resolve evaluates expr against available, which must be in listing order.
//
// An out-of-range index is an error, never a silent skip. An expression that
// matches nothing (for example "private" with no private playlists) is valid.
func Resolve(expr string, available []Playlist) (Set, error) {
	set := NewSet(false)

	if strings.TrimSpace(expr) == "" {
		return Set{}, &Error{Expr: expr, Reason: "empty expression"}
	}

	for raw := range strings.SplitSeq(expr, ",") {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" {
			return Set{}, &Error{Expr: expr, Reason: "empty term"}
		}

		switch term {
		case "all":
			for _, p := range available {
				set.PlaylistIDs[p.ID] = struct{}{}
			}
			continue
		case "public", "private":
			want := term == "public"
			for _, p := range available {
				if p.Public == want {
					set.PlaylistIDs[p.ID] = struct{}{}
				}
			}
			continue
		}

		lo, hi, err := parseTerm(term)
		if err != nil {
			return Set{}, &Error{Expr: expr, Term: term, Reason: err.Error()}
		}
		if lo < 1 || hi > len(available) {
			return Set{}, &Error{
				Expr:   expr,
				Term:   term,
				Reason: fmt.Sprintf("out of range, %d playlists available", len(available)),
			}
		}
		for i := lo; i <= hi; i++ {
			set.PlaylistIDs[available[i-1].ID] = struct{}{}
		}
	}
	return set, nil
}

// parseTerm parses "n" or "a-b" into an inclusive 1-based range.
func parseTerm(term string) (int, int, error) {
	from, to, isRange := strings.Cut(term, "-")
	lo, err := parseIndex(from)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return lo, lo, nil
	}

	hi, err := parseIndex(to)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, errors.Newf("range end %d is before start %d", hi, lo)
	}
	return lo, hi, nil
}

func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf("%q is not an index, range or keyword", s)
	}
	return n, nil
}
