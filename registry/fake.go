package registry

import (
	"fmt"
	urlpkg "net/url"
	"sort"
	"testing"
)

type Fake struct {
	name     string
	packages map[string]*Package
	lookups  map[string]int
}

var fakes = make(map[string]*Fake)

func NewFake(name string) *Fake {
	fake := &Fake{name, make(map[string]*Package), make(map[string]int)}
	fakes[name] = fake
	return fake
}

func (f *Fake) URL() string {
	return fmt.Sprintf("fake:%v", f.name)
}

// AddPackage registers an installed package. Targets are sorted; executables are added to Targets.
func (f *Fake) AddPackage(t *testing.T, pkg Package) *Package {
	if _, exists := f.packages[pkg.Name]; exists {
		t.Fatalf("entry already exists for %v", pkg.Name)
	}
	if pkg.Prefix == "" {
		pkg.Prefix = "/fake/" + f.name
	}
	seen := make(map[string]bool)
	var targets []string
	for _, target := range pkg.Targets {
		seen[target] = true
		targets = append(targets, target)
	}
	for exe := range pkg.Executables {
		if !seen[exe] {
			targets = append(targets, exe)
		}
	}
	sort.Strings(targets)
	pkg.Targets = targets
	f.packages[pkg.Name] = &pkg
	return &pkg
}

// Lookups returns how often the package `name` was asked for.
func (f *Fake) Lookups(name string) int {
	return f.lookups[name]
}

func (f *Fake) Lookup(name string) (*Package, error) {
	f.lookups[name]++
	pkg, ok := f.packages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %v in %v", ErrNotFound, name, f.URL())
	}
	return pkg, nil
}

func fakeScheme(url string) (Registry, error) {
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	fake := fakes[u.Opaque]
	if fake == nil {
		return nil, fmt.Errorf("unknown fake registry: %v", u.Opaque)
	}
	return fake, nil
}

func init() {
	schemes["fake"] = fakeScheme
}
