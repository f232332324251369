package resolve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablog/depresolve/catalog"
	"github.com/tablog/depresolve/common/integrity"
	"github.com/tablog/depresolve/common/logging"
	"github.com/tablog/depresolve/common/testutil"
	"github.com/tablog/depresolve/registry"
)

const grpcDescriptor = `
project(name="grpc", version="1.76.0")
library(name="grpc++", deps=["@protobuf//:libprotobuf"])
library(name="grpc++_reflection", deps=[":grpc++"])
library(name="grpcpp_channelz", deps=[":grpc++"])
if not settings.cross_compiling:
    executable(name="protoc")
    executable(name="grpc_cpp_plugin")
test(name="grpc_test", deps=[":grpc++"])
install(targets=["grpc++"])
`

const googletestDescriptor = `
project(name="googletest", version="1.17.0")
library(name="gtest")
library(name="gtest_main", deps=[":gtest"])
test(name="gtest_unittest", deps=[":gtest_main"])
install(targets=["gtest", "gtest_main"])
`

func newTestEnv(t *testing.T, registries ...string) *Env {
	return &Env{
		WsDir:          t.TempDir(),
		VendorDir:      "third_party",
		CacheDir:       t.TempDir(),
		BuildDir:       filepath.Join("build", "_deps"),
		Registries:     registries,
		TargetPlatform: "linux/amd64",
		HostPlatform:   "linux/amd64",
		Logger:         logging.Discard(),
	}
}

func newRealResolver(env *Env) (*Resolver, *memRecorder) {
	r := New(catalog.Default(), env)
	rec := &memRecorder{}
	r.Recorder = rec
	return r, rec
}

func TestScenario_GoogletestFromRemoteArchive(t *testing.T) {
	emptyReg := registry.NewFake("scenario1")
	env := newTestEnv(t, emptyReg.URL())
	zipArchive := testutil.BuildZipArchive(t, map[string][]byte{
		"googletest-1.17.0/BUILD.dep":          []byte(googletestDescriptor),
		"googletest-1.17.0/googletest/gtest.h": []byte(`#pragma once`),
	})
	server := testutil.StaticHttpServer(map[string][]byte{"/googletest-1.17.0.zip": zipArchive})
	defer server.Close()

	r, rec := newRealResolver(env)
	state := NewState()
	overrides := Overrides{
		Version:     "1.17.0",
		Repository:  server.URL + "/googletest-{version}.zip",
		Integrity:   integrity.MustGenerate("sha256", zipArchive),
		StripPrefix: "googletest-1.17.0/",
	}
	artifacts, err := r.Resolve(context.Background(), state, "googletest", overrides)
	require.NoError(t, err)
	assert.Equal(t, Artifacts{
		catalog.Library:     "@googletest//:gtest",
		catalog.MainLibrary: "@googletest//:gtest_main",
	}, artifacts)
	e, _ := state.Get("googletest")
	assert.Equal(t, RemoteFetch, e.Strategy)
	require.Len(t, rec.attempts, 3)
	assert.Equal(t, Skipped, rec.attempts[0].Outcome)
	assert.Equal(t, Skipped, rec.attempts[1].Outcome)
	testutil.AssertFileContents(t, filepath.Join(env.CacheDir, "src", "googletest", "googletest", "gtest.h"), `#pragma once`)

	// A new run reuses the source cache.
	_, err = New(catalog.Default(), env).Resolve(context.Background(), NewState(), "googletest", overrides)
	require.NoError(t, err)
	assert.Equal(t, 1, server.Hits("/googletest-1.17.0.zip"))
}

func TestScenario_GrpcVendored(t *testing.T) {
	env := newTestEnv(t)
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "grpc", "BUILD.dep"), grpcDescriptor)

	r, _ := newRealResolver(env)
	state := NewState()
	artifacts, err := r.Resolve(context.Background(), state, "grpc", Overrides{})
	require.NoError(t, err)
	buildDir := filepath.Join(env.WsDir, "build", "_deps")
	assert.Equal(t, Artifacts{
		catalog.Library:           "@grpc//:grpc++",
		catalog.ReflectionLibrary: "@grpc//:grpc++_reflection",
		catalog.AuxiliaryService:  "@grpc//:grpcpp_channelz",
		catalog.CompilerToolPath:  filepath.Join(buildDir, "grpc", "bin", "protoc"),
		catalog.PluginToolPath:    filepath.Join(buildDir, "grpc", "bin", "grpc_cpp_plugin"),
	}, artifacts)
	e, _ := state.Get("grpc")
	assert.Equal(t, Vendored, e.Strategy)
}

func installGrpc(t *testing.T, reg *registry.Fake, binDir string) {
	reg.AddPackage(t, registry.Package{
		Name:        "protobuf",
		Version:     "31.1",
		Targets:     []string{"protobuf::libprotobuf"},
		Executables: map[string]string{"protobuf::protoc": filepath.Join(binDir, "protoc")},
	})
	reg.AddPackage(t, registry.Package{
		Name:        "gRPC",
		Version:     "1.76.0",
		Targets:     []string{"gRPC::grpc++", "gRPC::grpc++_reflection"},
		Executables: map[string]string{"gRPC::grpc_cpp_plugin": filepath.Join(binDir, "grpc_cpp_plugin")},
	})
}

func TestScenario_GrpcInstalled(t *testing.T) {
	reg := registry.NewFake("scenario3")
	binDir := filepath.Join(t.TempDir(), "bin")
	installGrpc(t, reg, binDir)
	env := newTestEnv(t, reg.URL())

	r, rec := newRealResolver(env)
	state := NewState()
	artifacts, err := r.Resolve(context.Background(), state, "grpc", Overrides{})
	require.NoError(t, err)
	// RemoteFetch never runs once Installed succeeds.
	require.Len(t, rec.attempts, 2)
	assert.Equal(t, Vendored, rec.attempts[0].Strategy)
	assert.Equal(t, Skipped, rec.attempts[0].Outcome)
	assert.Equal(t, Installed, rec.attempts[1].Strategy)
	assert.Equal(t, Succeeded, rec.attempts[1].Outcome)
	// Installed packages don't provide the auxiliary service.
	assert.Equal(t, Artifacts{
		catalog.Library:           "gRPC::grpc++",
		catalog.ReflectionLibrary: "gRPC::grpc++_reflection",
		catalog.CompilerToolPath:  filepath.Join(binDir, "protoc"),
		catalog.PluginToolPath:    filepath.Join(binDir, "grpc_cpp_plugin"),
	}, artifacts)
	e, _ := state.Get("grpc")
	assert.Equal(t, Installed, e.Strategy)
	assert.Equal(t, 1, reg.Lookups("protobuf"))
}

func TestScenario_GrpcInstalledWithoutProtobuf(t *testing.T) {
	reg := registry.NewFake("scenario3b")
	reg.AddPackage(t, registry.Package{Name: "gRPC", Version: "1.76.0", Targets: []string{"gRPC::grpc++"}})
	env := newTestEnv(t, reg.URL())
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "grpc", "BUILD.dep"), grpcDescriptor)

	// Vendored wins anyway; check Installed's verdict through a resolver that only has Installed.
	r := &Resolver{
		Catalog:    catalog.Default(),
		Strategies: []Strategy{&InstalledStrategy{Env: env, Catalog: catalog.Default()}},
		Publisher:  &Publisher{Env: env},
		Logger:     env.Logger,
	}
	_, err := r.Resolve(context.Background(), NewState(), "grpc", Overrides{})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, Skipped, resErr.Attempts[0].Outcome)
	assert.Contains(t, resErr.Attempts[0].Reason, "protobuf")
	assert.Zero(t, reg.Lookups("gRPC"))
}

func TestScenario_MissingDependency(t *testing.T) {
	reg := registry.NewFake("scenario4")
	env := newTestEnv(t, reg.URL())

	r, rec := newRealResolver(env)
	state := NewState()
	_, err := r.Resolve(context.Background(), state, "missingDep", Overrides{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `"missingDep"`)
	_, ok := state.Get("missingDep")
	assert.False(t, ok)
	require.Len(t, rec.attempts, 3)
	assert.Equal(t, []StrategyName{Vendored, Installed, RemoteFetch},
		[]StrategyName{rec.attempts[0].Strategy, rec.attempts[1].Strategy, rec.attempts[2].Strategy})
}

func TestResolve_DotNameLeavesCacheAlone(t *testing.T) {
	env := newTestEnv(t)
	keep := filepath.Join(env.CacheDir, "src", "googletest", "BUILD.dep")
	testutil.WriteFile(t, keep, googletestDescriptor)

	r, rec := newRealResolver(env)
	for _, name := range []string{".", ".."} {
		_, err := r.Resolve(context.Background(), NewState(), name, Overrides{Repository: "file:///nonexistent/x.zip"})
		assert.ErrorIs(t, err, ErrInvalidSpec, name)
	}
	assert.Empty(t, rec.attempts)
	assert.FileExists(t, keep)
}

func TestVendored_DescriptorErrorFails(t *testing.T) {
	env := newTestEnv(t)
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "grpc", "BUILD.dep"), `library(name="a", deps=[":nope"])`)

	outcome := (&VendoredStrategy{Env: env}).Acquire(context.Background(), DependencySpec{Name: "grpc"}, catalog.Entry{})
	assert.Equal(t, Failed, outcome.Kind)
	assert.Contains(t, outcome.Err.Error(), "undeclared target")
}

func TestVendored_NoDescriptorSkips(t *testing.T) {
	env := newTestEnv(t)
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "grpc", "README"), "")

	outcome := (&VendoredStrategy{Env: env}).Acquire(context.Background(), DependencySpec{Name: "grpc"}, catalog.Entry{})
	assert.Equal(t, Skipped, outcome.Kind)

	env.VendorDir = ""
	outcome = (&VendoredStrategy{Env: env}).Acquire(context.Background(), DependencySpec{Name: "grpc"}, catalog.Entry{})
	assert.Equal(t, Skipped, outcome.Kind)
}

func TestRemoteFetch_NoDescriptorFails(t *testing.T) {
	env := newTestEnv(t)
	zipArchive := testutil.BuildZipArchive(t, map[string][]byte{"README": []byte(`hi`)})
	server := testutil.StaticHttpServer(map[string][]byte{"/x.zip": zipArchive})
	defer server.Close()

	outcome := (&RemoteFetchStrategy{Env: env}).Acquire(context.Background(),
		DependencySpec{Name: "x", Repository: server.URL + "/x.zip"}, catalog.Entry{})
	assert.Equal(t, Failed, outcome.Kind)
	assert.Contains(t, outcome.Err.Error(), "BUILD.dep")
}

func TestRemoteFetch_CMakeOnlyTree(t *testing.T) {
	env := newTestEnv(t)
	zipArchive := testutil.BuildZipArchive(t, map[string][]byte{
		"zstd-1.5.7/CMakeLists.txt": []byte(`
project(zstd VERSION 1.5.7 LANGUAGES C)
add_library(zstd STATIC lib/zstd.c)
add_executable(zstd_test tests/fuzzer.c)
`),
	})
	server := testutil.StaticHttpServer(map[string][]byte{"/zstd-1.5.7.zip": zipArchive})
	defer server.Close()

	r, rec := newRealResolver(env)
	state := NewState()
	artifacts, err := r.Resolve(context.Background(), state, "zstd", Overrides{
		Version:     "1.5.7",
		Repository:  server.URL + "/zstd-{version}.zip",
		StripPrefix: "zstd-1.5.7/",
	})
	require.NoError(t, err)
	assert.Equal(t, Artifacts{catalog.Library: "@zstd//:zstd"}, artifacts)
	require.Len(t, rec.attempts, 3)
	assert.Equal(t, RemoteFetch, rec.attempts[2].Strategy)
	assert.Equal(t, Succeeded, rec.attempts[2].Outcome)
}

func TestRemoteFetch_UpstreamTreeUsesCatalogDescriptor(t *testing.T) {
	env := newTestEnv(t)
	// Upstream googletest declares its targets through its own cxx_library() helper.
	zipArchive := testutil.BuildZipArchive(t, map[string][]byte{
		"googletest-1.17.0/CMakeLists.txt": []byte(`
project(googletest-distribution)
add_subdirectory(googletest)
`),
		"googletest-1.17.0/googletest/CMakeLists.txt": []byte(`
cxx_library(gtest "${cxx_strict}" src/gtest-all.cc)
cxx_library(gtest_main "${cxx_strict}" src/gtest_main.cc)
`),
	})
	server := testutil.StaticHttpServer(map[string][]byte{"/googletest-1.17.0.zip": zipArchive})
	defer server.Close()

	outcome := (&RemoteFetchStrategy{Env: env}).Acquire(context.Background(), DependencySpec{
		Name:        "googletest",
		Version:     "1.17.0",
		Repository:  server.URL + "/googletest-1.17.0.zip",
		StripPrefix: "googletest-1.17.0/",
	}, catalog.Default().Lookup("googletest"))
	require.Equal(t, Succeeded, outcome.Kind, "%v", outcome.Err)
	assert.Equal(t, "@googletest//:gtest", outcome.Raw["gtest"])
	assert.Equal(t, "@googletest//:gtest_main", outcome.Raw["gtest_main"])
}

func TestCrossCompile_HostTools(t *testing.T) {
	reg := registry.NewFake("cross")
	installGrpc(t, reg, "/opt/target-sysroot/bin")
	env := newTestEnv(t, reg.URL())
	env.TargetPlatform = "linux/arm64"
	hostA, hostB := t.TempDir(), t.TempDir()
	env.HostToolDirs = []string{hostA, hostB}
	testutil.WriteExecutable(t, filepath.Join(hostA, "grpc_cpp_plugin"))
	testutil.WriteExecutable(t, filepath.Join(hostB, "grpc_cpp_plugin"))
	testutil.WriteExecutable(t, filepath.Join(hostB, "protoc"))
	// Not executable, so it doesn't shadow hostB/protoc.
	testutil.WriteFile(t, filepath.Join(hostA, "protoc"), "")

	r, _ := newRealResolver(env)
	artifacts, err := r.Resolve(context.Background(), NewState(), "grpc", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "gRPC::grpc++", artifacts[catalog.Library])
	assert.Equal(t, filepath.Join(hostB, "protoc"), artifacts[catalog.CompilerToolPath])
	assert.Equal(t, filepath.Join(hostA, "grpc_cpp_plugin"), artifacts[catalog.PluginToolPath])
}

func TestCrossCompile_VendoredUsesHostTools(t *testing.T) {
	env := newTestEnv(t)
	env.TargetPlatform = "linux/arm64"
	hostDir := t.TempDir()
	env.HostToolDirs = []string{hostDir}
	testutil.WriteExecutable(t, filepath.Join(hostDir, "protoc"))
	testutil.WriteExecutable(t, filepath.Join(hostDir, "grpc_cpp_plugin"))
	// The descriptor leaves its executables out when cross-compiling.
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "grpc", "BUILD.dep"), grpcDescriptor)

	r, _ := newRealResolver(env)
	artifacts, err := r.Resolve(context.Background(), NewState(), "grpc", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "@grpc//:grpcpp_channelz", artifacts[catalog.AuxiliaryService])
	assert.Equal(t, filepath.Join(hostDir, "protoc"), artifacts[catalog.CompilerToolPath])
	assert.Equal(t, filepath.Join(hostDir, "grpc_cpp_plugin"), artifacts[catalog.PluginToolPath])
}

func TestCrossCompile_MissingHostTool(t *testing.T) {
	env := newTestEnv(t)
	env.TargetPlatform = "linux/arm64"
	env.HostToolDirs = []string{t.TempDir()}
	testutil.WriteFile(t, filepath.Join(env.WsDir, "third_party", "protobuf", "BUILD.dep"), `
project(name="protobuf")
library(name="libprotobuf")
`)

	r, rec := newRealResolver(env)
	state := NewState()
	missing := "file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "protobuf.zip"))
	_, err := r.Resolve(context.Background(), state, "protobuf", Overrides{Repository: missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialArtifact)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, rec.attempts[0].Reason, "host executable protoc not found")
	_, ok := state.Get("protobuf")
	assert.False(t, ok)
}
