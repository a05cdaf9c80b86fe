package transcript

import (
	"strings"

	"github.com/prepdeck/prepdeck/internal/session"
)

// RoleView is an aggregated, derived view of one role's share of a
// transcript. Views are recomputed from the entry list on every call and
// never stored, so they cannot diverge from the source of truth.
type RoleView struct {
	// Turns counts entries attributed to the role.
	Turns int

	// FinalTurns counts entries that have been closed.
	FinalTurns int

	// Text is the role's utterances concatenated in sequence order,
	// separated by single spaces.
	Text string
}

// Views computes the per-role aggregation of entries. Entries whose turn is
// still open contribute their provisional text.
func Views(entries []session.TranscriptEntry) map[session.Role]RoleView {
	parts := map[session.Role][]string{}
	views := map[session.Role]RoleView{}

	for _, e := range entries {
		v := views[e.Role]
		v.Turns++
		if e.Final {
			v.FinalTurns++
		}
		views[e.Role] = v
		if e.Text != "" {
			parts[e.Role] = append(parts[e.Role], e.Text)
		}
	}

	for role, v := range views {
		v.Text = strings.Join(parts[role], " ")
		views[role] = v
	}
	return views
}
