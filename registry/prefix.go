package registry

import (
	"fmt"
	urlpkg "net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Prefix is a host install prefix (such as /usr or /usr/local) holding CMake package config files. A package `P` is
// installed if `<prefix>/lib/cmake/P/PConfig.cmake` (or the lowercase `p-config.cmake` spelling, or the same under
// lib64/ or share/) exists.
type Prefix struct {
	url  string
	root string
}

func NewPrefix(url string, root string) *Prefix {
	return &Prefix{url, root}
}

func (p *Prefix) URL() string {
	return p.url
}

var packageDirs = []string{
	filepath.Join("lib", "cmake"),
	filepath.Join("lib64", "cmake"),
	filepath.Join("share", "cmake"),
}

var (
	versionRe  = regexp.MustCompile(`set\(\s*PACKAGE_VERSION\s+"([^"]*)"\s*\)`)
	importedRe = regexp.MustCompile(`add_(library|executable)\(\s*([^\s()]+)\s+(?:\w+\s+)?IMPORTED`)
)

func (p *Prefix) Lookup(name string) (*Package, error) {
	dir := p.findConfig(name)
	if dir == "" {
		return nil, fmt.Errorf("%w: %v under %v", ErrNotFound, name, p.root)
	}
	pkg := &Package{Name: name, Prefix: p.root, Executables: make(map[string]string)}
	for _, versionFile := range []string{name + "ConfigVersion.cmake", strings.ToLower(name) + "-config-version.cmake"} {
		b, err := os.ReadFile(filepath.Join(dir, versionFile))
		if err != nil {
			continue
		}
		if m := versionRe.FindSubmatch(b); m != nil {
			pkg.Version = string(m[1])
			break
		}
	}

	// Imported targets are declared by the config file itself or, more commonly, by the *Targets.cmake files it
	// includes from the same directory.
	files, err := filepath.Glob(filepath.Join(dir, "*.cmake"))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("error reading %v: %v", f, err)
		}
		for _, m := range importedRe.FindAllSubmatch(b, -1) {
			target := string(m[2])
			if seen[target] {
				continue
			}
			seen[target] = true
			pkg.Targets = append(pkg.Targets, target)
			if string(m[1]) == "executable" {
				exe := filepath.Join(p.root, "bin", executableName(target))
				if info, err := os.Stat(exe); err == nil && !info.IsDir() {
					pkg.Executables[target] = exe
				}
			}
		}
	}
	sort.Strings(pkg.Targets)
	return pkg, nil
}

// executableName strips the namespace off an imported target: "protobuf::protoc" is installed as bin/protoc.
func executableName(target string) string {
	if i := strings.LastIndex(target, "::"); i >= 0 {
		return target[i+2:]
	}
	return target
}

// findConfig returns the directory holding the package's config file.
func (p *Prefix) findConfig(name string) string {
	for _, d := range packageDirs {
		dir := filepath.Join(p.root, d, name)
		for _, f := range []string{name + "Config.cmake", strings.ToLower(name) + "-config.cmake"} {
			if info, err := os.Stat(filepath.Join(dir, f)); err == nil && !info.IsDir() {
				return dir
			}
		}
	}
	return ""
}

func prefixScheme(url string) (Registry, error) {
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	if u.Host != "" && u.Host != "localhost" {
		return nil, fmt.Errorf("file registry %v: remote hosts are not supported", url)
	}
	return NewPrefix(url, filepath.FromSlash(u.Path)), nil
}

func init() {
	schemes["file"] = prefixScheme
}
