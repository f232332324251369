package descriptor

import (
	"fmt"
	"sort"

	"github.com/tablog/depresolve/common"
	"go.starlark.net/syntax"
)

// FileName is the build descriptor every dependency tree must carry at its root.
const FileName = "BUILD.dep"

type Kind string

const (
	KindLibrary    Kind = "library"
	KindExecutable Kind = "executable"
	KindTest       Kind = "test"
)

// Target is a target declared by a descriptor.
type Target struct {
	Name string
	Kind Kind
	Deps []*common.Label
	Pos  syntax.Position
}

// Settings is exposed to descriptors as the read-only `settings` global. Dependencies consumed as subcomponents are
// evaluated with BuildTesting and Install off.
type Settings struct {
	BuildTesting   bool
	Install        bool
	TargetPlatform string
	HostPlatform   string
}

// CrossCompiling reports whether the build targets a platform the host can't execute.
func (s Settings) CrossCompiling() bool {
	return s.TargetPlatform != "" && s.HostPlatform != "" && s.TargetPlatform != s.HostPlatform
}

// Graph is what evaluating a dependency tree produces.
type Graph struct {
	// Repo is the dependency name the tree was incorporated as; it's the repo part of every target label.
	Repo    string
	Project string
	Version string
	Targets map[string]*Target
	// Installs lists the targets named by install() rules that were kept.
	Installs []string
	// Suppressed records test() and install() rules dropped because of Settings, as "kind:name".
	Suppressed []string
}

func newGraph(repo string) *Graph {
	return &Graph{Repo: repo, Targets: make(map[string]*Target)}
}

// Label returns the absolute label of the named target.
func (g *Graph) Label(name string) *common.Label {
	return common.NewLabel(g.Repo, name)
}

// Has reports whether a target of the given kind exists. An empty kind matches any kind.
func (g *Graph) Has(name string, kind Kind) bool {
	t, ok := g.Targets[name]
	return ok && (kind == "" || t.Kind == kind)
}

// Names returns the declared target names, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.Targets))
	for name := range g.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Graph) add(t *Target) error {
	if prev, ok := g.Targets[t.Name]; ok {
		return fmt.Errorf("target %q already declared at %v", t.Name, prev.Pos)
	}
	g.Targets[t.Name] = t
	return nil
}

// check verifies that every in-repo dependency edge points at a declared target. Edges into other repos are left to
// whoever resolves those repos.
func (g *Graph) check() error {
	for _, name := range g.Names() {
		t := g.Targets[name]
		for _, dep := range t.Deps {
			if dep.Repo != g.Repo {
				continue
			}
			if _, ok := g.Targets[dep.Target]; !ok {
				return fmt.Errorf("%v: target %q depends on undeclared target %v", t.Pos, t.Name, dep)
			}
		}
	}
	for _, name := range g.Installs {
		if _, ok := g.Targets[name]; !ok {
			return fmt.Errorf("install() names undeclared target %q", name)
		}
	}
	return nil
}
