package descriptor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tablog/depresolve/common"
	"github.com/tablog/depresolve/common/starutil"
	"go.starlark.net/starlark"
)

// maxSubdirDepth bounds nested subdirectory() calls.
const maxSubdirDepth = 16

type evalCacheEntry struct {
	globals starlark.StringDict
	err     error
}

// Eval incorporates one dependency tree into the build by executing its descriptor. An Eval is single-use.
type Eval struct {
	repo     string
	root     string
	settings Settings
	logger   *slog.Logger

	graph       *Graph
	cache       map[string]*evalCacheEntry
	predeclared starlark.StringDict
	depth       int
}

// Evaluate executes `<root>/BUILD.dep` as dependency `repo` and returns the resulting target graph.
func Evaluate(repo string, root string, settings Settings, logger *slog.Logger) (*Graph, error) {
	return evaluate(repo, root, nil, settings, logger)
}

// EvaluateOverlay is like Evaluate, but runs `src` in place of the tree's own top-level descriptor. Loads and
// subdirectories still resolve against `root`.
func EvaluateOverlay(repo string, root string, src []byte, settings Settings, logger *slog.Logger) (*Graph, error) {
	return evaluate(repo, root, src, settings, logger)
}

func evaluate(repo string, root string, overlay []byte, settings Settings, logger *slog.Logger) (*Graph, error) {
	e := &Eval{
		repo:     repo,
		root:     root,
		settings: settings,
		logger:   logger,
		graph:    newGraph(repo),
		cache:    make(map[string]*evalCacheEntry),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	settingsStruct, err := starutil.Struct(map[string]interface{}{
		"build_testing":   settings.BuildTesting,
		"install":         settings.Install,
		"target_platform": settings.TargetPlatform,
		"host_platform":   settings.HostPlatform,
		"cross_compiling": settings.CrossCompiling(),
	})
	if err != nil {
		return nil, err
	}
	e.predeclared = starlark.StringDict{
		"settings":     settingsStruct,
		"project":      starlark.NewBuiltin("project", e.projectFn),
		"library":      starlark.NewBuiltin("library", e.targetFn(KindLibrary)),
		"executable":   starlark.NewBuiltin("executable", e.targetFn(KindExecutable)),
		"test":         starlark.NewBuiltin("test", e.targetFn(KindTest)),
		"install":      starlark.NewBuiltin("install", e.installFn),
		"subdirectory": starlark.NewBuiltin("subdirectory", e.subdirectoryFn),
	}
	if overlay != nil {
		err = e.execSource(filepath.Join(root, FileName), overlay)
	} else {
		err = e.execDescriptor(root)
	}
	if err != nil {
		return nil, err
	}
	if err := e.graph.check(); err != nil {
		return nil, fmt.Errorf("%v: %w", filepath.Join(root, FileName), err)
	}
	return e.graph, nil
}

// Present reports whether `dir` looks like a dependency tree, i.e. carries a descriptor or a CMake project.
func Present(dir string) bool {
	return isFile(filepath.Join(dir, FileName)) || isFile(filepath.Join(dir, CMakeFileName))
}

// Incorporate builds the target graph of the tree at `root`. The tree's own BUILD.dep wins. Without one, `overlay`
// (a descriptor kept outside the tree) is evaluated against the tree, and without an overlay the CMake project is
// scanned.
func Incorporate(repo string, root string, overlay string, settings Settings, logger *slog.Logger) (*Graph, error) {
	switch {
	case isFile(filepath.Join(root, FileName)):
		return Evaluate(repo, root, settings, logger)
	case overlay != "":
		return EvaluateOverlay(repo, root, []byte(overlay), settings, logger)
	case isFile(filepath.Join(root, CMakeFileName)):
		return ScanCMake(repo, root, settings, logger)
	}
	return nil, fmt.Errorf("%v has neither %v nor %v", root, FileName, CMakeFileName)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (e *Eval) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			e.logger.Debug(msg, "repo", e.repo)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return e.load(module)
		},
	}
}

func (e *Eval) execDescriptor(dir string) error {
	filename := filepath.Join(dir, FileName)
	src, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return e.execSource(filename, src)
}

func (e *Eval) execSource(filename string, src []byte) error {
	thread := e.newThread("descriptor " + filename)
	if _, err := starlark.ExecFile(thread, filename, src, e.predeclared); err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return fmt.Errorf("%v", evalErr.Backtrace())
		}
		return err
	}
	return nil
}

// load executes a helper .star file named by a label relative to the tree root, e.g. load(":defs.star", "x").
func (e *Eval) load(module string) (starlark.StringDict, error) {
	label, err := common.ParseLabel(module)
	if err != nil {
		return nil, err
	}
	if label.HasRepo && label.Repo != e.repo {
		return nil, fmt.Errorf("cannot load %v: descriptors may only load files from their own tree", label)
	}
	filename := filepath.Join(e.root, filepath.FromSlash(label.Target))
	entry, ok := e.cache[filename]
	if entry == nil {
		if ok {
			return nil, fmt.Errorf("cycle in load graph at %v", label)
		}
		e.cache[filename] = nil
		src, err := os.ReadFile(filename)
		if err != nil {
			entry = &evalCacheEntry{nil, err}
		} else {
			globals, err := starlark.ExecFile(e.newThread("load "+filename), filename, src, e.predeclared)
			entry = &evalCacheEntry{globals, err}
		}
		e.cache[filename] = entry
	}
	return entry.globals, entry.err
}

func (e *Eval) projectFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected positional arguments", b.Name())
	}
	var name, version string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "version?", &version); err != nil {
		return nil, err
	}
	// Only the outermost project() names the tree; nested subdirectories may declare their own.
	if e.depth == 0 {
		if e.graph.Project != "" {
			return nil, fmt.Errorf("%v: can only be called once", b.Name())
		}
		e.graph.Project, e.graph.Version = name, version
	}
	return starlark.None, nil
}

func (e *Eval) targetFn(kind Kind) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%v: unexpected positional arguments", b.Name())
		}
		var (
			name     string
			srcs     *starlark.List
			depsList *starlark.List
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"name", &name,
			"srcs?", &srcs,
			"deps?", &depsList,
		); err != nil {
			return nil, err
		}
		if _, err := common.ParseLabel(":" + name); err != nil {
			return nil, fmt.Errorf("%v: invalid target name: %v", b.Name(), err)
		}
		if kind == KindTest && !e.settings.BuildTesting {
			e.graph.Suppressed = append(e.graph.Suppressed, "test:"+name)
			return starlark.None, nil
		}
		rawDeps, err := starutil.ExtractStringSlice(depsList)
		if err != nil {
			return nil, fmt.Errorf("%v: deps: %v", b.Name(), err)
		}
		target := &Target{Name: name, Kind: kind, Pos: t.CallFrame(1).Pos}
		for _, raw := range rawDeps {
			label, err := common.ParseLabel(raw)
			if err != nil {
				return nil, fmt.Errorf("%v: %v", b.Name(), err)
			}
			target.Deps = append(target.Deps, label.Resolve(e.repo))
		}
		if err := e.graph.add(target); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

func (e *Eval) installFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected positional arguments", b.Name())
	}
	var targets *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "targets", &targets); err != nil {
		return nil, err
	}
	names, err := starutil.ExtractStringSlice(targets)
	if err != nil {
		return nil, err
	}
	if !e.settings.Install {
		for _, name := range names {
			e.graph.Suppressed = append(e.graph.Suppressed, "install:"+name)
		}
		return starlark.None, nil
	}
	e.graph.Installs = append(e.graph.Installs, names...)
	return starlark.None, nil
}

func (e *Eval) subdirectoryFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	if filepath.IsAbs(path) {
		return nil, fmt.Errorf("%v: path must be relative to the tree root: %q", b.Name(), path)
	}
	if e.depth >= maxSubdirDepth {
		return nil, fmt.Errorf("%v: nested too deeply", b.Name())
	}
	dir := filepath.Join(e.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(e.root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%v: path escapes the tree: %q", b.Name(), path)
	}
	e.depth++
	defer func() { e.depth-- }()
	if err := e.execDescriptor(dir); err != nil {
		return nil, err
	}
	return starlark.None, nil
}
