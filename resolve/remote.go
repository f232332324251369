package resolve

import (
	"context"
	"fmt"

	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/descriptor"
	"github.com/tablog/depresolve/fetch"
)

// RemoteFetchStrategy downloads the dependency's source tree into the source cache and incorporates it. It's the
// last resort.
type RemoteFetchStrategy struct {
	Env *Env
}

func (s *RemoteFetchStrategy) Name() StrategyName {
	return RemoteFetch
}

// Fetcher returns the fetcher RemoteFetch would use for `spec`.
func (s *RemoteFetchStrategy) Fetcher(spec DependencySpec) fetch.Fetcher {
	return fetch.ForRepository(spec.Repository, spec.Tag, spec.Integrity, spec.StripPrefix)
}

// Fetch makes sure the source cache holds a tree for `spec` and returns its directory.
func (s *RemoteFetchStrategy) Fetch(ctx context.Context, spec DependencySpec) (string, error) {
	if spec.Repository == "" {
		return "", fmt.Errorf("no repository known for %v", spec.Name)
	}
	if s.Env.CacheDir == "" {
		return "", fmt.Errorf("no cache directory configured")
	}
	env := &fetch.Env{
		CacheDir: s.Env.path(s.Env.CacheDir),
		WsDir:    s.Env.WsDir,
		Logger:   s.Env.Logger,
	}
	return s.Fetcher(spec).Fetch(ctx, spec.Name, env)
}

func (s *RemoteFetchStrategy) Acquire(ctx context.Context, spec DependencySpec, entry catalog.Entry) Outcome {
	dir, err := s.Fetch(ctx, spec)
	if err != nil {
		return failed(err)
	}
	if !descriptor.Present(dir) {
		return failed(fmt.Errorf("fetched tree at %v has neither %v nor %v",
			dir, descriptor.FileName, descriptor.CMakeFileName))
	}
	raw, err := incorporate(spec, entry, dir, s.Env)
	if err != nil {
		return failed(fmt.Errorf("error incorporating fetched tree: %w", err))
	}
	return succeeded(OriginSubtree, raw)
}
