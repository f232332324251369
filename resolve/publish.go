package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/tablog/depresolve/catalog"
)

// Publisher turns a strategy's raw targets into role-named artifacts. The returned error wraps ErrPartialArtifact.
type Publisher struct {
	Env *Env
}

func (p *Publisher) Publish(entry catalog.Entry, outcome Outcome) (Artifacts, error) {
	cross := p.Env.CrossCompiling()
	artifacts := make(Artifacts)
	roles := make([]catalog.Role, 0, len(entry.Roles))
	for role := range entry.Roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	for _, role := range roles {
		target := entry.Roles[role]
		if role.IsTool() && cross {
			if target.Host == "" {
				return nil, fmt.Errorf("%w: %v: no host executable known for %v", ErrPartialArtifact, entry.Name, role)
			}
			path, err := p.findHostTool(target.Host)
			if err != nil {
				return nil, fmt.Errorf("%w: %v: %v", ErrPartialArtifact, entry.Name, err)
			}
			artifacts[role] = path
			continue
		}
		name := outcome.Origin.targetFor(target)
		if name == "" {
			// This strategy doesn't produce the role.
			continue
		}
		handle, ok := outcome.Raw[name]
		if !ok {
			return nil, fmt.Errorf("%w: %v: target %q for %v not found", ErrPartialArtifact, entry.Name, name, role)
		}
		if role.IsTool() && !filepath.IsAbs(handle) {
			return nil, fmt.Errorf("%w: %v: executable %q for %v is not installed", ErrPartialArtifact, entry.Name,
				name, role)
		}
		artifacts[role] = handle
	}
	return artifacts, nil
}

// findHostTool searches the host tool directories, in order, for an executable called `name`.
func (p *Publisher) findHostTool(name string) (string, error) {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	for _, dir := range p.Env.HostToolDirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(p.Env.path(dir), name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("host executable %v not found in %v", name, p.Env.HostToolDirs)
}
