package resolve

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-version"
	"github.com/tablog/depresolve/catalog"
)

// DependencySpec is what gets resolved. It's computed once per resolution from the catalog defaults and the caller's
// overrides, and passed around by value.
type DependencySpec struct {
	Name       string
	Version    string
	Tag        string
	Repository string
	// Integrity and StripPrefix only apply to archive repositories.
	Integrity   string
	StripPrefix string
}

// Overrides replace catalog defaults. Empty fields keep the default.
type Overrides struct {
	Version     string
	Tag         string
	Repository  string
	Integrity   string
	StripPrefix string
}

// Names become directory names under the vendor and cache dirs, so they can't start with a dot or a dash.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.+-]*$`)

// NewDependencySpec combines `entry` with `o`. The returned error wraps ErrInvalidSpec.
func NewDependencySpec(entry catalog.Entry, o Overrides) (DependencySpec, error) {
	invalid := func(format string, args ...interface{}) (DependencySpec, error) {
		return DependencySpec{}, fmt.Errorf("%w: %v: %v", ErrInvalidSpec, entry.Name, fmt.Sprintf(format, args...))
	}
	if entry.Name == "" {
		return DependencySpec{}, fmt.Errorf("%w: empty dependency name", ErrInvalidSpec)
	}
	if !nameRe.MatchString(entry.Name) {
		return invalid("name must match %v", nameRe)
	}
	if o.Tag != "" && o.Version == "" {
		return invalid("tag %q given without a version", o.Tag)
	}
	if (o.Integrity != "" || o.StripPrefix != "") && o.Repository == "" {
		return invalid("integrity and strip_prefix need an explicit repository")
	}

	spec := DependencySpec{
		Name:        entry.Name,
		Version:     entry.Version,
		Integrity:   o.Integrity,
		StripPrefix: o.StripPrefix,
	}
	if o.Version != "" {
		spec.Version = o.Version
	}
	if spec.Version != "" {
		if _, err := version.NewVersion(spec.Version); err != nil {
			return invalid("%v", err)
		}
	}
	switch {
	case o.Tag != "":
		spec.Tag = o.Tag
	case spec.Version != "":
		spec.Tag = entry.Tag(spec.Version)
	}
	spec.Repository = entry.Repository
	if o.Repository != "" {
		spec.Repository = o.Repository
	}
	spec.Repository = catalog.ExpandRepository(spec.Repository, spec.Version, spec.Tag)
	return spec, nil
}

func (s DependencySpec) String() string {
	if s.Version == "" {
		return s.Name
	}
	return s.Name + "@" + s.Version
}
