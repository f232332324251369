package common

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DepKey identifies a dependency as requested on the command line or in a DEPS.star file.
type DepKey struct {
	Name    string
	Version string // empty when the catalog default should be used
}

func (k DepKey) String() string {
	if k.Version == "" {
		return fmt.Sprintf("%v@_", k.Name)
	}
	return fmt.Sprintf("%v@%v", k.Name, k.Version)
}

// ParseDepKey parses "name" or "name@version". A trailing "@" or "@_" means no version.
func ParseDepKey(raw string) (DepKey, error) {
	name, version := raw, ""
	if i := strings.LastIndexByte(raw, '@'); i >= 0 {
		name, version = raw[:i], raw[i+1:]
	}
	if name == "" {
		return DepKey{}, fmt.Errorf("malformed dependency %q: empty name", raw)
	}
	if version == "_" {
		version = ""
	}
	return DepKey{name, version}, nil
}

// NormalizePath normalizes `path`, which can be either absolute or relative to `root`, to an absolute file path. If
// `path` is an absolute path on the current OS, we just return it; otherwise, it could either have forward slashes or
// backward slashes as path separators, and we deal with it accordingly. `root` itself should already be an absolute
// filepath.
func NormalizePath(root string, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.IndexByte(path, '/') >= 0 {
		path = filepath.FromSlash(path)
	}
	return filepath.Join(root, path)
}
