package descriptor

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tablog/depresolve/common"
	"go.starlark.net/syntax"
)

// CMakeFileName is the CMake project file. A tree without a BUILD.dep but with one of these can still be scanned for
// the targets it declares.
const CMakeFileName = "CMakeLists.txt"

var (
	cmakeBracketCommentRe = regexp.MustCompile(`(?s)#\[\[.*?\]\]`)
	cmakeLineCommentRe    = regexp.MustCompile(`#[^\n]*`)
	cmakeProjectRe        = regexp.MustCompile(`(?i)\bproject\s*\(\s*"?([^\s")]+)"?([^)]*)\)`)
	cmakeVersionRe        = regexp.MustCompile(`\bVERSION\s+"?([0-9][^\s")]*)`)
	cmakeTargetRe         = regexp.MustCompile(`(?i)\badd_(library|executable)\s*\(\s*"?([^\s")]+)"?([^)]*)`)
	cmakeSubdirRe         = regexp.MustCompile(`(?i)\badd_subdirectory\s*\(\s*"?([^\s")]+)"?`)
	cmakeIncludeRe        = regexp.MustCompile(`(?i)\binclude\s*\(\s*"?([^\s")]+\.cmake)"?`)
	// Executables named like tests are treated as test() rules.
	cmakeTestNameRe = regexp.MustCompile(`(^|[_-])(test|tests|unittest|unittests|benchmark)$`)
)

type cmakeScan struct {
	root     string
	settings Settings
	logger   *slog.Logger
	graph    *Graph
	visited  map[string]bool
	seen     map[string]bool
}

// ScanCMake builds a target graph for `root` from its CMake project files, following add_subdirectory() and
// include() calls with literal paths. Only target names and kinds are recovered. Dependency edges and install rules
// are not, and targets named through variables, ALIAS targets and IMPORTED targets are skipped. When a target is
// declared more than once (typically in both branches of an if()) the first declaration wins.
func ScanCMake(repo string, root string, settings Settings, logger *slog.Logger) (*Graph, error) {
	s := &cmakeScan{
		root:     root,
		settings: settings,
		logger:   logger,
		graph:    newGraph(repo),
		visited:  make(map[string]bool),
		seen:     make(map[string]bool),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if err := s.scanFile(filepath.Join(root, CMakeFileName), 0); err != nil {
		return nil, err
	}
	return s.graph, nil
}

// stripCMakeComments blanks out comments, keeping newlines so offsets still map to the right line.
func stripCMakeComments(src []byte) []byte {
	keepNewlines := func(comment []byte) []byte {
		return bytes.Repeat([]byte("\n"), bytes.Count(comment, []byte("\n")))
	}
	src = cmakeBracketCommentRe.ReplaceAllFunc(src, keepNewlines)
	return cmakeLineCommentRe.ReplaceAll(src, nil)
}

func (s *cmakeScan) scanFile(filename string, depth int) error {
	if s.visited[filename] {
		return nil
	}
	s.visited[filename] = true
	raw, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	src := stripCMakeComments(raw)
	dir := filepath.Dir(filename)

	if filename == filepath.Join(s.root, CMakeFileName) {
		if m := cmakeProjectRe.FindSubmatch(src); m != nil {
			s.graph.Project = string(m[1])
			if v := cmakeVersionRe.FindSubmatch(m[2]); v != nil {
				s.graph.Version = string(v[1])
			}
		}
	}

	for _, m := range cmakeTargetRe.FindAllSubmatchIndex(src, -1) {
		line := int32(bytes.Count(src[:m[0]], []byte("\n")) + 1)
		s.addTarget(syntax.MakePosition(&filename, line, 1),
			string(src[m[2]:m[3]]), string(src[m[4]:m[5]]), string(src[m[6]:m[7]]))
	}

	for _, m := range cmakeIncludeRe.FindAllSubmatch(src, -1) {
		path, ok := s.within(dir, string(m[1]))
		if !ok || !isFile(path) {
			continue
		}
		if err := s.scanFile(path, depth); err != nil {
			return err
		}
	}

	for _, m := range cmakeSubdirRe.FindAllSubmatch(src, -1) {
		path, ok := s.within(dir, string(m[1]))
		if !ok {
			continue
		}
		sub := filepath.Join(path, CMakeFileName)
		if !isFile(sub) {
			s.logger.Debug("skipping missing CMake subdirectory", "repo", s.graph.Repo, "dir", path)
			continue
		}
		if depth+1 > maxSubdirDepth {
			return fmt.Errorf("%v: add_subdirectory nested too deeply", filename)
		}
		if err := s.scanFile(sub, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// within resolves a literal path argument against `dir`, refusing variables and anything outside the tree.
func (s *cmakeScan) within(dir string, arg string) (string, bool) {
	if strings.Contains(arg, "$") || filepath.IsAbs(arg) {
		return "", false
	}
	path := filepath.Join(dir, filepath.FromSlash(arg))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

func (s *cmakeScan) addTarget(pos syntax.Position, command string, name string, args string) {
	for _, arg := range strings.Fields(args) {
		switch strings.ToUpper(arg) {
		case "ALIAS", "IMPORTED":
			return
		}
	}
	if strings.Contains(name, "$") {
		s.logger.Debug("skipping CMake target named by a variable", "repo", s.graph.Repo, "target", name, "pos", pos)
		return
	}
	if _, err := common.ParseLabel(":" + name); err != nil {
		return
	}
	if s.seen[name] {
		return
	}
	s.seen[name] = true

	kind := KindLibrary
	if strings.EqualFold(command, "executable") {
		kind = KindExecutable
		if cmakeTestNameRe.MatchString(name) {
			kind = KindTest
		}
	}
	if kind == KindTest && !s.settings.BuildTesting {
		s.graph.Suppressed = append(s.graph.Suppressed, "test:"+name)
		return
	}
	s.graph.Targets[name] = &Target{Name: name, Kind: kind, Pos: pos}
}
