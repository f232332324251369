package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/common/logging"
	"github.com/tablog/depresolve/common/testutil"
	"github.com/tablog/depresolve/config"
	"github.com/tablog/depresolve/history"
	"github.com/tablog/depresolve/lockfile"
	"github.com/tablog/depresolve/resolve"
)

func testSettings(t *testing.T) *config.Settings {
	wsDir := t.TempDir()
	return &config.Settings{
		WorkspaceDir:   wsDir,
		// An empty prefix keeps the host's own installs out of the results.
		Registries:     []string{"file://" + filepath.ToSlash(t.TempDir())},
		CacheDir:       t.TempDir(),
		BuildDir:       filepath.Join(wsDir, "build", "_deps"),
		TargetPlatform: "linux/amd64",
		HostPlatform:   "linux/amd64",
		HistoryDB:      filepath.Join(wsDir, ".depresolve", "history.db"),
		LockFile:       filepath.Join(wsDir, lockfile.FileName),
	}
}

func writeVendoredWorkspace(t *testing.T, wsDir string) {
	testutil.WriteFile(t, filepath.Join(wsDir, resolve.WorkspaceFile), `
workspace_settings(vendor_dir="vendor")
dependency(name="googletest")
dependency(name="protobuf", version="31.1")
`)
	testutil.WriteFile(t, filepath.Join(wsDir, "vendor", "googletest", "BUILD.dep"), `
project(name="googletest", version="1.17.0")
library(name="gtest")
library(name="gtest_main", deps=[":gtest"])
`)
	testutil.WriteFile(t, filepath.Join(wsDir, "vendor", "protobuf", "BUILD.dep"), `
project(name="protobuf", version="31.1")
library(name="libprotobuf")
executable(name="protoc")
`)
}

func TestRunResolve_Workspace(t *testing.T) {
	s := testSettings(t)
	writeVendoredWorkspace(t, s.WorkspaceDir)

	out := &bytes.Buffer{}
	require.NoError(t, runResolve(context.Background(), s, logging.Discard(), nil, out, true))

	printed := lockfile.NewWorkspace()
	require.NoError(t, json.Unmarshal(out.Bytes(), printed))
	assert.Equal(t, []string{"googletest", "protobuf"}, printed.Order)
	assert.Equal(t, "@googletest//:gtest_main", printed.Deps["googletest"].Artifacts[catalog.MainLibrary])
	assert.Equal(t, filepath.Join(s.BuildDir, "protobuf", "bin", "protoc"),
		printed.Deps["protobuf"].Artifacts[catalog.CompilerToolPath])

	written, err := lockfile.Read(s.LockFile)
	require.NoError(t, err)
	assert.Equal(t, printed, written)

	store, err := history.Open(s.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	rows, err := store.List("", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRunResolve_TextOutput(t *testing.T) {
	s := testSettings(t)
	writeVendoredWorkspace(t, s.WorkspaceDir)

	out := &bytes.Buffer{}
	require.NoError(t, runResolve(context.Background(), s, logging.Discard(), []string{"googletest"}, out, false))
	assert.Regexp(t, `googletest\s+1\.17\.0\s+Vendored`, out.String())
	assert.Regexp(t, `mainLibrary\s+@googletest//:gtest_main`, out.String())
	assert.NotContains(t, out.String(), "protobuf")
}

func TestRunResolve_Failure(t *testing.T) {
	s := testSettings(t)
	s.HistoryDB = ""
	writeVendoredWorkspace(t, s.WorkspaceDir)

	out := &bytes.Buffer{}
	err := runResolve(context.Background(), s, logging.Discard(), []string{"googletest", "missingDep"}, out, true)
	require.ErrorIs(t, err, resolve.ErrNotFound)
	assert.Contains(t, err.Error(), "missingDep")

	assert.NoFileExists(t, s.LockFile)
	assert.Empty(t, out.String())
}

func TestRunResolve_NothingToDo(t *testing.T) {
	s := testSettings(t)
	err := runResolve(context.Background(), s, logging.Discard(), nil, &bytes.Buffer{}, true)
	assert.ErrorContains(t, err, "no dependencies named")
}

func TestDeclarations(t *testing.T) {
	ws := &resolve.Workspace{Deps: []resolve.Declaration{
		{Name: "grpc", Overrides: resolve.Overrides{Version: "1.76.0", Tag: "v1.76.0"}},
	}}
	decls, err := declarations(ws, []string{"grpc", "protobuf@30.0", "grpc@1.70.0"})
	require.NoError(t, err)
	assert.Equal(t, []resolve.Declaration{
		{Name: "grpc", Overrides: resolve.Overrides{Version: "1.76.0", Tag: "v1.76.0"}},
		{Name: "protobuf", Overrides: resolve.Overrides{Version: "30.0"}},
		{Name: "grpc", Overrides: resolve.Overrides{Version: "1.70.0"}},
	}, decls)

	_, err = declarations(nil, []string{"@1.0"})
	assert.Error(t, err)
}

func TestRunFetch(t *testing.T) {
	s := testSettings(t)
	writeVendoredWorkspace(t, s.WorkspaceDir)
	require.NoError(t, runResolve(context.Background(), s, logging.Discard(), nil, &bytes.Buffer{}, true))

	zipArchive := testutil.BuildZipArchive(t, map[string][]byte{"BUILD.dep": []byte(`project(name="extra")`)})
	zipPath := filepath.Join(t.TempDir(), "extra.zip")
	testutil.WriteFileBytes(t, zipPath, zipArchive)
	testutil.WriteFile(t, filepath.Join(s.WorkspaceDir, resolve.WorkspaceFile), `
workspace_settings(vendor_dir="vendor")
dependency(name="googletest")
dependency(name="extra", repository="file://`+filepath.ToSlash(zipPath)+`")
`)

	out := &bytes.Buffer{}
	require.NoError(t, runFetch(context.Background(), s, logging.Discard(), true, nil, out))
	assert.Equal(t,
		"googletest "+filepath.Join(s.WorkspaceDir, "vendor", "googletest")+"\n"+
			"extra "+filepath.Join(s.CacheDir, "src", "extra")+"\n",
		out.String())
	testutil.AssertFileContents(t, filepath.Join(s.CacheDir, "src", "extra", "BUILD.dep"), `project(name="extra")`)
}

func TestRunHistory(t *testing.T) {
	s := testSettings(t)
	writeVendoredWorkspace(t, s.WorkspaceDir)
	require.NoError(t, runResolve(context.Background(), s, logging.Discard(), nil, &bytes.Buffer{}, true))

	out := &bytes.Buffer{}
	require.NoError(t, runHistory(s, "protobuf", 5, out, true))
	var rows []history.Row
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, resolve.Vendored, rows[0].Strategy)

	s.HistoryDB = ""
	assert.Error(t, runHistory(s, "", 5, out, true))
}
