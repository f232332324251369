// Package registry answers "is this package installed on the host, and what does it export?" for the Installed
// strategy. Registries are read-only.
package registry

import (
	"errors"
	"fmt"
	urlpkg "net/url"
	"sort"
)

// Package describes one installed package.
type Package struct {
	// Name is the package name as the host knows it (the CMake package name, e.g. "gRPC").
	Name    string
	Version string
	// Prefix is the install prefix the package was found under.
	Prefix string
	// Targets lists the imported target names the package exports, e.g. "gRPC::grpc++".
	Targets []string
	// Executables maps imported executable targets to their installed paths.
	Executables map[string]string
}

// HasTarget reports whether the package exports the imported target `name`.
func (p *Package) HasTarget(name string) bool {
	i := sort.SearchStrings(p.Targets, name)
	return i < len(p.Targets) && p.Targets[i] == name
}

type Registry interface {
	URL() string
	// Lookup returns the installed package called `name`, or an error wrapping ErrNotFound.
	Lookup(name string) (*Package, error)
}

var schemes = make(map[string]func(url string) (Registry, error))

func New(url string) (Registry, error) {
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	fn := schemes[u.Scheme]
	if fn == nil {
		return nil, fmt.Errorf("unrecognized registry scheme %v", u.Scheme)
	}
	return fn(url)
}

var ErrNotFound = errors.New("package not found")

// Lookup asks each of `registries` in turn for the package called `name`. Earlier registries take priority.
// Returns the package, and the registry that actually has it.
func Lookup(name string, registries []string) (*Package, Registry, error) {
	for _, url := range registries {
		reg, err := New(url)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating registry from %q: %v", url, err)
		}
		pkg, err := reg.Lookup(name)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return nil, reg, err
		}
		return pkg, reg, nil
	}

	// The package couldn't be found in any of the registries.
	return nil, nil, fmt.Errorf("%w: %v", ErrNotFound, name)
}
