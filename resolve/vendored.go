package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/descriptor"
	"github.com/tablog/depresolve/fetch"
)

// VendoredStrategy uses a copy of the dependency checked into the workspace at `<VendorDir>/<name>`.
type VendoredStrategy struct {
	Env *Env
}

func (v *VendoredStrategy) Name() StrategyName {
	return Vendored
}

func (v *VendoredStrategy) Acquire(ctx context.Context, spec DependencySpec, entry catalog.Entry) Outcome {
	if v.Env.VendorDir == "" {
		return skipped("no vendor directory configured")
	}
	fetcher := &fetch.LocalPath{Path: filepath.Join(v.Env.VendorDir, spec.Name)}
	dir, err := fetcher.Fetch(ctx, spec.Name, &fetch.Env{WsDir: v.Env.WsDir, Logger: v.Env.Logger})
	if os.IsNotExist(err) {
		return skipped("no vendored copy at %v", v.Env.path(fetcher.Path))
	} else if err != nil {
		return failed(err)
	}
	if !descriptor.Present(dir) {
		return skipped("vendored copy at %v has neither %v nor %v", dir, descriptor.FileName, descriptor.CMakeFileName)
	}
	raw, err := incorporate(spec, entry, dir, v.Env)
	if err != nil {
		return failed(fmt.Errorf("error incorporating vendored copy: %w", err))
	}
	return succeeded(OriginSubtree, raw)
}
