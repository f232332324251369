// Package lockfile records the outcome of a resolution run for the build steps that consume it.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/common"
	"github.com/tablog/depresolve/fetch"
	"github.com/tablog/depresolve/resolve"
)

const FileName = "depresolve.lock"

type Workspace struct {
	TargetPlatform string `json:",omitempty"`
	Deps           map[string]*Dep
	// Order lists the dependencies in resolution order.
	Order []string
}

type Dep struct {
	Version    string `json:",omitempty"`
	Tag        string `json:",omitempty"`
	Repository string `json:",omitempty"`
	Strategy   resolve.StrategyName
	// Source says where the dependency's source tree came from. It's empty for installed packages.
	Source    FetcherWrapper `json:",omitempty"`
	Artifacts map[catalog.Role]string
}

func NewWorkspace() *Workspace {
	return &Workspace{Deps: make(map[string]*Dep)}
}

// FromState captures every entry of `state`. Source trees are described relative to the workspace, the way the
// strategies found them.
func FromState(state *resolve.State, env *resolve.Env) *Workspace {
	ws := NewWorkspace()
	ws.TargetPlatform = env.TargetPlatform
	for _, name := range state.Names() {
		e, _ := state.Get(name)
		dep := &Dep{
			Version:    e.Spec.Version,
			Tag:        e.Spec.Tag,
			Repository: e.Spec.Repository,
			Strategy:   e.Strategy,
			Artifacts:  e.Artifacts,
		}
		switch e.Strategy {
		case resolve.Vendored:
			dep.Source = WrapFetcher(&fetch.LocalPath{Path: workspaceRelative(env.WsDir, filepath.Join(env.VendorDir, name))})
		case resolve.RemoteFetch:
			dep.Source = WrapFetcher((&resolve.RemoteFetchStrategy{Env: env}).Fetcher(e.Spec))
		}
		ws.Deps[name] = dep
		ws.Order = append(ws.Order, name)
	}
	return ws
}

// workspaceRelative makes `path` relative to the workspace if it's inside it, so the lockfile stays valid when the
// workspace moves.
func workspaceRelative(wsDir string, path string) string {
	abs := common.NormalizePath(wsDir, path)
	rel, err := filepath.Rel(wsDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Names returns the recorded dependency names in resolution order, followed by any others sorted by name.
func (ws *Workspace) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range ws.Order {
		if _, ok := ws.Deps[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	var rest []string
	for name := range ws.Deps {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Fetch makes the recorded source tree of `name` available again, without resolving anything.
func (ws *Workspace) Fetch(ctx context.Context, name string, env *fetch.Env) (string, error) {
	dep := ws.Deps[name]
	if dep == nil {
		return "", fmt.Errorf("no such dependency in lockfile: %v", name)
	}
	if dep.Source.IsZero() {
		return "", fmt.Errorf("%v was resolved as %v and has no source tree", name, dep.Strategy)
	}
	dir, err := dep.Source.Fetch(ctx, name, env)
	if err != nil {
		return "", fmt.Errorf("error fetching %v: %w", name, err)
	}
	return dir, nil
}

func Read(path string) (*Workspace, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ws := NewWorkspace()
	if err := json.Unmarshal(b, ws); err != nil {
		return nil, fmt.Errorf("error parsing lockfile %v: %v", path, err)
	}
	if ws.Deps == nil {
		ws.Deps = make(map[string]*Dep)
	}
	return ws, nil
}

// Write stores the lockfile at `path`, replacing it atomically.
func (ws *Workspace) Write(path string) error {
	b, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
