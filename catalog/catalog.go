// Package catalog holds the table of known dependencies: their default coordinates, their transitive requirements,
// and which target provides each role under each acquisition strategy.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is a strategy-independent name for one piece of a resolved dependency.
type Role string

const (
	Library           Role = "library"
	MainLibrary       Role = "mainLibrary"
	ReflectionLibrary Role = "reflectionLibrary"
	AuxiliaryService  Role = "auxiliaryService"
	CompilerToolPath  Role = "compilerToolPath"
	PluginToolPath    Role = "pluginToolPath"
)

var knownRoles = map[Role]bool{
	Library: true, MainLibrary: true, ReflectionLibrary: true,
	AuxiliaryService: true, CompilerToolPath: true, PluginToolPath: true,
}

// IsTool reports whether the role names an executable meant to run during the build.
func (r Role) IsTool() bool {
	return strings.HasSuffix(string(r), "ToolPath")
}

// Target names what provides a role under each strategy. An empty field means that strategy doesn't provide it.
type Target struct {
	Subtree   string `yaml:"subtree,omitempty"`
	Installed string `yaml:"installed,omitempty"`
	Host      string `yaml:"host,omitempty"`
}

// Entry describes one dependency.
type Entry struct {
	Name        string          `yaml:"-"`
	Description string          `yaml:"description,omitempty"`
	Version     string          `yaml:"version"`
	Repository  string          `yaml:"repository,omitempty"` // may contain {version} and {tag}
	Package     string          `yaml:"package,omitempty"`    // CMake package name, defaults to Name
	Requires    []string        `yaml:"requires,omitempty"`
	Roles       map[Role]Target `yaml:"roles"`

	// Descriptor is a BUILD.dep used for source trees that don't carry their own, such as the upstream repositories
	// of known dependencies.
	Descriptor string `yaml:"descriptor,omitempty"`

	// TagPrefix is prepended to the version to form the default source tag. Empty means "v"; "none" means no prefix.
	TagPrefix string `yaml:"tag-prefix,omitempty"`

	// Known is false for entries synthesized for names missing from the catalog.
	Known bool `yaml:"-"`
}

// Tag returns the default source tag for `version`.
func (e Entry) Tag(version string) string {
	switch e.TagPrefix {
	case "":
		return "v" + version
	case "none":
		return version
	default:
		return e.TagPrefix + version
	}
}

// ExpandRepository substitutes the {version} and {tag} placeholders in `repository`.
func ExpandRepository(repository string, version string, tag string) string {
	return strings.NewReplacer("{version}", version, "{tag}", tag).Replace(repository)
}

// Catalog is a read-only table of entries.
type Catalog struct {
	entries map[string]Entry
}

//go:embed catalog.yaml
var builtin []byte

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic("invalid catalog.yaml: " + err.Error())
	}
	return c
}

// Parse reads a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	entries := make(map[string]Entry)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	for name, e := range entries {
		e.Name = name
		e.Known = true
		if e.Package == "" {
			e.Package = name
		}
		for role, target := range e.Roles {
			if !knownRoles[role] {
				return nil, fmt.Errorf("entry %v: unknown role %q", name, role)
			}
			if target.Host != "" && !role.IsTool() {
				return nil, fmt.Errorf("entry %v: role %v is not a tool but has a host executable", name, role)
			}
		}
		for _, req := range e.Requires {
			if _, ok := entries[req]; !ok {
				return nil, fmt.Errorf("entry %v: requires unknown entry %q", name, req)
			}
		}
		entries[name] = e
	}
	return &Catalog{entries}, nil
}

// Lookup returns the entry for `name`. Unknown names get a generic entry whose only role is a library target of the
// same name, with no default version or repository.
func (c *Catalog) Lookup(name string) Entry {
	if e, ok := c.entries[name]; ok {
		return e
	}
	return Entry{
		Name:    name,
		Package: name,
		Roles: map[Role]Target{
			Library: {Subtree: name, Installed: name + "::" + name},
		},
	}
}

// Names returns the names of all known entries, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
