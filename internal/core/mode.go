package core

import "fmt"

// Mode identifies what unit of work an analysis or chat request represents.
// It is a closed set: adding a mode means touching every switch that
// matches on it, which is intentional.
type Mode int

const (
	// ModeCommit targets a single commit identified by sha.
	ModeCommit Mode = iota
	// ModePullRequest targets a pull request identified by number.
	ModePullRequest
	// ModeRepository targets the repository as a whole (no target).
	ModeRepository
	// ModeTrend targets a window of recent commits.
	ModeTrend
	// ModeWhatIf is a hypothetical chat turn: the context substitutes a
	// target sha for this turn only, without touching the scope's
	// persisted target.
	ModeWhatIf
)

var modeNames = map[Mode]string{
	ModeCommit:      "commit",
	ModePullRequest: "pull-request",
	ModeRepository:  "repository",
	ModeTrend:       "trend",
	ModeWhatIf:      "what-if",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts the wire-level mode string into a Mode. The empty
// string maps to ModeCommit, matching the original API default.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "commit":
		return ModeCommit, nil
	case "pull-request", "pr":
		return ModePullRequest, nil
	case "repository", "repo":
		return ModeRepository, nil
	case "trend", "trends":
		return ModeTrend, nil
	case "what-if", "whatif":
		return ModeWhatIf, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// RequiresTarget reports whether turns in this mode need a resolvable
// target sha before the conversation may start.
func (m Mode) RequiresTarget() bool {
	switch m {
	case ModeCommit, ModeWhatIf:
		return true
	default:
		return false
	}
}

// Repository identifies a hosted repository by owner and name.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Scope is the addressable conversation thread: repository + mode +
// optional target. Two scopes with different targets are fully isolated.
type Scope struct {
	Repo   Repository `json:"repo"`
	Mode   Mode       `json:"mode"`
	Target string     `json:"target,omitempty"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s:%s", s.Repo, s.Mode, s.Target)
}
