package lockfile

import (
	"context"

	"github.com/tablog/depresolve/fetch"
)

// FetcherWrapper wraps all known implementations of the fetch.Fetcher interface and acts as a multiplexer (at most 1
// member should be non-nil). It's useful in JSON marshalling/unmarshalling.
type FetcherWrapper struct {
	Archive   *fetch.Archive   `json:",omitempty"`
	Git       *fetch.Git       `json:",omitempty"`
	LocalPath *fetch.LocalPath `json:",omitempty"`
}

func WrapFetcher(f fetch.Fetcher) FetcherWrapper {
	switch ft := f.(type) {
	case *fetch.Archive:
		return FetcherWrapper{Archive: ft}
	case *fetch.Git:
		return FetcherWrapper{Git: ft}
	case *fetch.LocalPath:
		return FetcherWrapper{LocalPath: ft}
	}
	return FetcherWrapper{}
}

// Unwrap returns the wrapped fetcher, or nil for dependencies that have no source tree (installed packages).
func (w FetcherWrapper) Unwrap() fetch.Fetcher {
	if w.Archive != nil {
		return w.Archive
	}
	if w.Git != nil {
		return w.Git
	}
	if w.LocalPath != nil {
		return w.LocalPath
	}
	return nil
}

func (w FetcherWrapper) IsZero() bool {
	return w.Unwrap() == nil
}

func (w FetcherWrapper) Fetch(ctx context.Context, name string, env *fetch.Env) (string, error) {
	return w.Unwrap().Fetch(ctx, name, env)
}

func (w FetcherWrapper) Fingerprint() string {
	if f := w.Unwrap(); f != nil {
		return f.Fingerprint()
	}
	return ""
}
