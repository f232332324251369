package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/registry"
)

// InstalledStrategy uses packages already installed on the host. It only reads from the registries.
type InstalledStrategy struct {
	Env     *Env
	Catalog *catalog.Catalog
}

func (s *InstalledStrategy) Name() StrategyName {
	return Installed
}

func (s *InstalledStrategy) Acquire(_ context.Context, spec DependencySpec, entry catalog.Entry) Outcome {
	if len(s.Env.Registries) == 0 {
		return skipped("no host registries configured")
	}
	// Requirements first: an installed gRPC is no use without an installed protobuf.
	var packages []string
	for _, req := range entry.Requires {
		packages = append(packages, s.Catalog.Lookup(req).Package)
	}
	packages = append(packages, entry.Package)

	raw := make(map[string]string)
	for i, name := range packages {
		pkg, reg, err := registry.Lookup(name, s.Env.Registries)
		if errors.Is(err, registry.ErrNotFound) {
			return skipped("package %v is not installed", name)
		} else if err != nil {
			return failed(fmt.Errorf("error looking up package %v: %w", name, err))
		}
		s.Env.logger().Debug("found installed package", "dep", spec.Name, "package", name,
			"version", pkg.Version, "registry", reg.URL())
		if i == len(packages)-1 {
			if mismatch, ok := versionMismatch(spec.Version, pkg.Version); ok {
				s.Env.logger().Info("installed package has a different version", "dep", spec.Name,
					"requested", spec.Version, "installed", pkg.Version, "relation", mismatch)
			}
		}
		for _, target := range pkg.Targets {
			raw[target] = target
		}
		for target, path := range pkg.Executables {
			raw[target] = path
		}
	}
	return succeeded(OriginInstalled, raw)
}
