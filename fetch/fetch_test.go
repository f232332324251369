package fetch

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablog/depresolve/common/testutil"
)

func TestForRepository(t *testing.T) {
	assert.Equal(t, &Archive{
		URLs:        []string{"https://example.com/googletest-1.17.0.ZIP"},
		Integrity:   "sha256-blah",
		StripPrefix: "googletest-1.17.0/",
	}, ForRepository("https://example.com/googletest-1.17.0.ZIP", "v1.17.0", "sha256-blah", "googletest-1.17.0/"))
	assert.Equal(t, &Git{Repo: "https://github.com/grpc/grpc.git", Tag: "v1.76.0"},
		ForRepository("https://github.com/grpc/grpc.git", "v1.76.0", "", ""))
}

func TestLocalPath(t *testing.T) {
	env := testEnv(t)
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "grpc", "BUILD.dep"), "")

	dir, err := (&LocalPath{Path: "third_party/grpc"}).Fetch(context.Background(), "grpc", env)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.WsDir, "third_party", "grpc"), dir)

	_, err = (&LocalPath{Path: "third_party/grpc/BUILD.dep"}).Fetch(context.Background(), "grpc", env)
	assert.Error(t, err)
	_, err = (&LocalPath{Path: "nope"}).Fetch(context.Background(), "grpc", env)
	assert.Error(t, err)
}

func TestGit_CloneAtTag(t *testing.T) {
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("local git transport needs git-upload-pack")
	}
	env := testEnv(t)
	repoDir := t.TempDir()
	testutil.GitRepo(t, repoDir, map[string]string{
		"BUILD.dep": `project(name="protobuf", version="31.1")`,
	}, "v31.1")

	g := &Git{Repo: repoDir, Tag: "v31.1"}
	dir, err := g.Fetch(context.Background(), "protobuf", env)
	require.NoError(t, err)
	assert.Equal(t, SourceDir(env.CacheDir, "protobuf"), dir)
	testutil.AssertFileContents(t, filepath.Join(dir, "BUILD.dep"), `project(name="protobuf", version="31.1")`)
	fprint, ok := ReadMarker(dir)
	require.True(t, ok)
	assert.Equal(t, repoDir+"@v31.1", fprint)
}

func TestGit_UnknownTag(t *testing.T) {
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("local git transport needs git-upload-pack")
	}
	env := testEnv(t)
	repoDir := t.TempDir()
	testutil.GitRepo(t, repoDir, map[string]string{"BUILD.dep": ``}, "v1.0")

	_, err := (&Git{Repo: repoDir, Tag: "v2.0"}).Fetch(context.Background(), "dep", env)
	require.Error(t, err)
	_, ok := ReadMarker(SourceDir(env.CacheDir, "dep"))
	assert.False(t, ok)
}

func TestCachedFetch_NoCacheDir(t *testing.T) {
	_, err := (&Git{Repo: "x", Tag: "y"}).Fetch(context.Background(), "dep", &Env{})
	assert.Error(t, err)
}
