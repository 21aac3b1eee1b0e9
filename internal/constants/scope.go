package constants

// Scope picks the data directory that holds results.json, session.json and
// the event logs.
type Scope string

const (
	// ScopeLocal keeps an experiment's data in <root>/.dotmotion, so each
	// study directory has its own observers and leaderboard.
	ScopeLocal Scope = "local"

	// ScopeGlobal pools every run in ~/.dotmotion.
	ScopeGlobal Scope = "global"
)

// ScopeFor maps the --global flag onto a scope.
func ScopeFor(global bool) Scope {
	if global {
		return ScopeGlobal
	}
	return ScopeLocal
}

// Valid reports whether s names a data directory. Matching is exact.
func (s Scope) Valid() bool {
	return s == ScopeLocal || s == ScopeGlobal
}

func (s Scope) String() string {
	return string(s)
}
