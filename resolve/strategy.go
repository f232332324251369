package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/hashicorp/go-version"
	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/common"
	"github.com/tablog/depresolve/common/logging"
	"github.com/tablog/depresolve/descriptor"
)

type StrategyName string

const (
	Vendored    StrategyName = "Vendored"
	Installed   StrategyName = "Installed"
	RemoteFetch StrategyName = "RemoteFetch"
)

// Origin says which column of the catalog's role table applies to a strategy's targets.
type Origin int

const (
	// OriginSubtree targets are declared by a descriptor incorporated into the build.
	OriginSubtree Origin = iota
	// OriginInstalled targets are imported from a package installed on the host.
	OriginInstalled
)

func (o Origin) targetFor(t catalog.Target) string {
	if o == OriginInstalled {
		return t.Installed
	}
	return t.Subtree
}

type OutcomeKind int

const (
	Skipped OutcomeKind = iota
	Succeeded
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is what a strategy reports for one dependency.
type Outcome struct {
	Kind OutcomeKind
	// Reason explains a Skipped outcome.
	Reason string
	// Err explains a Failed outcome.
	Err error
	// Origin and Raw describe a Succeeded outcome. Raw maps strategy-specific target names to handles.
	Origin Origin
	Raw    map[string]string
}

func skipped(format string, args ...interface{}) Outcome {
	return Outcome{Kind: Skipped, Reason: fmt.Sprintf(format, args...)}
}

func failed(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}

func succeeded(origin Origin, raw map[string]string) Outcome {
	return Outcome{Kind: Succeeded, Origin: origin, Raw: raw}
}

// Strategy is one way of acquiring a dependency.
type Strategy interface {
	Name() StrategyName
	Acquire(ctx context.Context, spec DependencySpec, entry catalog.Entry) Outcome
}

// Env is what strategies need to know about the workspace and the host.
type Env struct {
	// WsDir is the absolute path of the workspace root. Relative paths below are resolved against it.
	WsDir     string
	VendorDir string
	CacheDir  string
	// BuildDir is where subtree builds put their outputs, one directory per dependency.
	BuildDir   string
	Registries []string

	TargetPlatform string
	HostPlatform   string
	// HostToolDirs are searched for host executables when cross-compiling.
	HostToolDirs []string

	Logger *slog.Logger
}

func (env *Env) logger() *slog.Logger {
	return logging.OrDefault(env.Logger)
}

func (env *Env) path(p string) string {
	return common.NormalizePath(env.WsDir, p)
}

// CrossCompiling reports whether tools built for the target platform can't run on the host.
func (env *Env) CrossCompiling() bool {
	return descriptor.Settings{TargetPlatform: env.TargetPlatform, HostPlatform: env.HostPlatform}.CrossCompiling()
}

// incorporate evaluates the descriptor of the tree at `dir` (or the entry's stand-in descriptor, or its CMake project)
// the way a subcomponent is added to the build: with its tests and install rules turned off. Library targets are published as labels, executables by the path the build
// puts them at.
func incorporate(spec DependencySpec, entry catalog.Entry, dir string, env *Env) (map[string]string, error) {
	settings := descriptor.Settings{
		BuildTesting:   false,
		Install:        false,
		TargetPlatform: env.TargetPlatform,
		HostPlatform:   env.HostPlatform,
	}
	graph, err := descriptor.Incorporate(spec.Name, dir, entry.Descriptor, settings, env.logger())
	if err != nil {
		return nil, err
	}
	if len(graph.Suppressed) > 0 {
		env.logger().Debug("suppressed descriptor rules", "dep", spec.Name, "rules", graph.Suppressed)
	}
	if mismatch, ok := versionMismatch(spec.Version, graph.Version); ok {
		env.logger().Info("source tree declares a different version", "dep", spec.Name, "requested", spec.Version,
			"declared", graph.Version, "relation", mismatch)
	}
	buildDir := env.path(env.BuildDir)
	raw := make(map[string]string, len(graph.Targets))
	for _, targetName := range graph.Names() {
		switch graph.Targets[targetName].Kind {
		case descriptor.KindExecutable:
			raw[targetName] = filepath.Join(buildDir, spec.Name, "bin", targetName)
		default:
			raw[targetName] = graph.Label(targetName).String()
		}
	}
	return raw, nil
}

// versionMismatch compares a requested version with one found in the wild. Versions that can't be compared are
// never reported.
func versionMismatch(requested string, found string) (string, bool) {
	if requested == "" || found == "" {
		return "", false
	}
	rv, err := version.NewVersion(requested)
	if err != nil {
		return "", false
	}
	fv, err := version.NewVersion(found)
	if err != nil {
		return "", false
	}
	switch {
	case fv.LessThan(rv):
		return "older", true
	case fv.GreaterThan(rv):
		return "newer", true
	}
	return "", false
}
