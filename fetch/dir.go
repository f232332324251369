package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tablog/depresolve/common"
)

// SourceDir returns the directory a remotely fetched tree for dependency `name` is cached in. The cache is keyed by
// name only; see cachedFetch.
func SourceDir(cacheDir string, name string) string {
	return filepath.Join(cacheDir, "src", name)
}

func HTTPCacheFilePath(cacheDir string, url string) string {
	return filepath.Join(cacheDir, "http_cache", common.Hash(url))
}

// cachedFetch makes sure the source cache for `name` is populated, calling `populate` with an empty directory if it
// isn't. A populated cache is used as-is even when it was fetched from different coordinates; the mismatch is only
// logged.
func cachedFetch(ctx context.Context, name string, env *Env, fprint string, populate func(ctx context.Context, dir string) error) (string, error) {
	if env.CacheDir == "" {
		return "", fmt.Errorf("no cache directory configured")
	}
	dir := SourceDir(env.CacheDir, name)
	if recorded, ok := ReadMarker(dir); ok {
		if recorded != fprint {
			env.logger().Warn("using cached source fetched from different coordinates",
				"dep", name, "cached", recorded, "wanted", fprint, "dir", dir)
		}
		return dir, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0777); err != nil {
		return "", fmt.Errorf("can't create source cache: %v", err)
	}
	if err := populate(ctx, dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if err := writeMarker(dir, fprint); err != nil {
		return "", fmt.Errorf("can't write fingerprint file: %v", err)
	}
	return dir, nil
}
