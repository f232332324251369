package resolve

import (
	"sort"

	"github.com/tablog/depresolve/catalog"
)

// Artifacts maps roles to published handles. Library roles hold a build target identifier, tool roles an absolute
// path to an executable. A missing role means the strategy doesn't produce it.
type Artifacts map[catalog.Role]string

func (a Artifacts) Clone() Artifacts {
	if a == nil {
		return nil
	}
	c := make(Artifacts, len(a))
	for role, handle := range a {
		c[role] = handle
	}
	return c
}

// Roles returns the published roles, sorted.
func (a Artifacts) Roles() []catalog.Role {
	roles := make([]catalog.Role, 0, len(a))
	for role := range a {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Entry records how a dependency was resolved.
type Entry struct {
	Spec      DependencySpec
	Strategy  StrategyName
	Artifacts Artifacts
}

// State is the resolution context of one configuration run: once a dependency has an entry, resolving it again
// returns that entry. Entries are never removed or replaced.
type State struct {
	entries map[string]Entry
	order   []string
}

func NewState() *State {
	return &State{entries: make(map[string]Entry)}
}

// Get returns a copy of the entry for `name`.
func (s *State) Get(name string) (Entry, bool) {
	e, ok := s.entries[name]
	if !ok {
		return Entry{}, false
	}
	e.Artifacts = e.Artifacts.Clone()
	return e, true
}

// Names returns the resolved dependency names in resolution order.
func (s *State) Names() []string {
	return append([]string(nil), s.order...)
}

func (s *State) Len() int {
	return len(s.order)
}

func (s *State) put(name string, e Entry) {
	if _, ok := s.entries[name]; ok {
		panic("resolve: state entry for " + name + " written twice")
	}
	e.Artifacts = e.Artifacts.Clone()
	s.entries[name] = e
	s.order = append(s.order, name)
}
