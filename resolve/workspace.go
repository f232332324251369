package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tablog/depresolve/common/starutil"
	"go.starlark.net/starlark"
)

// WorkspaceFile sits in the workspace root and declares the dependencies to resolve.
const WorkspaceFile = "DEPS.star"

// Declaration is one dependency() entry of the workspace file.
type Declaration struct {
	Name      string
	Overrides Overrides
}

// Workspace is the evaluated workspace file.
type Workspace struct {
	Deps []Declaration
	// VendorDir and Registries are empty unless set by workspace_settings().
	VendorDir  string
	Registries []string
}

type wsThreadState struct {
	ws          *Workspace
	seen        map[string]bool
	settingsSet bool
}

const wsStateLocalKey = "deps_star_tstate"

func getWsThreadState(t *starlark.Thread) *wsThreadState {
	return t.Local(wsStateLocalKey).(*wsThreadState)
}

func dependencyFn(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected positional arguments", b.Name())
	}
	var d Declaration
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &d.Name,
		"version?", &d.Overrides.Version,
		"tag?", &d.Overrides.Tag,
		"repository?", &d.Overrides.Repository,
		"integrity?", &d.Overrides.Integrity,
		"strip_prefix?", &d.Overrides.StripPrefix,
	); err != nil {
		return nil, err
	}
	tstate := getWsThreadState(t)
	if tstate.seen[d.Name] {
		return nil, fmt.Errorf("%v: %q declared twice", b.Name(), d.Name)
	}
	tstate.seen[d.Name] = true
	tstate.ws.Deps = append(tstate.ws.Deps, d)
	return starlark.None, nil
}

func wsSettingsFn(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected positional arguments", b.Name())
	}
	tstate := getWsThreadState(t)
	if tstate.settingsSet {
		return nil, fmt.Errorf("%v: can only be called once", b.Name())
	}
	var registries *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"vendor_dir?", &tstate.ws.VendorDir,
		"registries?", &registries,
	); err != nil {
		return nil, err
	}
	var err error
	tstate.ws.Registries, err = starutil.ExtractStringSlice(registries)
	if err != nil {
		return nil, err
	}
	tstate.settingsSet = true
	return starlark.None, nil
}

// ReadWorkspace evaluates the workspace file in `wsDir`.
func ReadWorkspace(wsDir string) (*Workspace, error) {
	filename := filepath.Join(wsDir, WorkspaceFile)
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	ws := &Workspace{}
	thread := &starlark.Thread{Name: "workspace " + filename}
	thread.SetLocal(wsStateLocalKey, &wsThreadState{ws: ws, seen: make(map[string]bool)})
	_, err = starlark.ExecFile(thread, filename, src, starlark.StringDict{
		"dependency":         starlark.NewBuiltin("dependency", dependencyFn),
		"workspace_settings": starlark.NewBuiltin("workspace_settings", wsSettingsFn),
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// ResolveAll resolves `deps` in order into `state` and stops at the first failure. Dependencies after the failing one
// are not attempted.
func (r *Resolver) ResolveAll(ctx context.Context, state *State, deps []Declaration) error {
	for _, d := range deps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.Resolve(ctx, state, d.Name, d.Overrides); err != nil {
			return err
		}
	}
	return nil
}
