package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tablog/depresolve/common"
	"github.com/tablog/depresolve/common/logging"
)

type Env struct {
	// CacheDir should be an absolute filepath to the root of the depresolve cache.
	CacheDir string
	// WsDir should be an absolute filepath to the root of the workspace directory.
	WsDir  string
	Logger *slog.Logger
}

func (env *Env) logger() *slog.Logger {
	return logging.OrDefault(env.Logger)
}

// Fetcher contains all the information needed to "fetch" a dependency's source tree. "Fetch" here is simply defined
// as making the contents of the tree available in a local directory through some means.
type Fetcher interface {
	// Fetch performs the fetch and returns the absolute path to the local directory where the fetched contents can be
	// accessed.
	// Fetch should be idempotent: once the contents are in place, subsequent calls return without touching the
	// network.
	Fetch(ctx context.Context, name string, env *Env) (string, error)

	// Fingerprint identifies where the contents come from. It's recorded next to cached contents so that a later
	// fetch from different coordinates can be noticed.
	Fingerprint() string
}

// ForRepository picks a Fetcher for a remote source tree: a zip archive if the repository names one, a git
// repository checked out at `tag` otherwise.
func ForRepository(repository string, tag string, integrity string, stripPrefix string) Fetcher {
	if strings.HasSuffix(strings.ToLower(repository), ".zip") {
		return &Archive{
			URLs:        []string{repository},
			Integrity:   integrity,
			StripPrefix: stripPrefix,
		}
	}
	return &Git{Repo: repository, Tag: tag}
}

// LocalPath represents a locally available unpacked directory.
type LocalPath struct {
	Path string
}

func (lp *LocalPath) Fetch(_ context.Context, _ string, env *Env) (string, error) {
	dir := common.NormalizePath(env.WsDir, lp.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%v is not a directory", dir)
	}
	return dir, nil
}

func (lp *LocalPath) Fingerprint() string {
	// A local path never needs to be re-fetched.
	return ""
}
