package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablog/depresolve/common"
)

func TestGraph_AddAndHas(t *testing.T) {
	g := newGraph("grpc")
	require.NoError(t, g.add(&Target{Name: "grpc++", Kind: KindLibrary}))
	require.NoError(t, g.add(&Target{Name: "grpc_cpp_plugin", Kind: KindExecutable}))

	assert.True(t, g.Has("grpc++", KindLibrary))
	assert.True(t, g.Has("grpc++", ""))
	assert.False(t, g.Has("grpc++", KindExecutable))
	assert.False(t, g.Has("nope", ""))
	assert.Equal(t, []string{"grpc++", "grpc_cpp_plugin"}, g.Names())
	assert.Equal(t, "@grpc//:grpc++", g.Label("grpc++").String())

	err := g.add(&Target{Name: "grpc++", Kind: KindTest})
	assert.ErrorContains(t, err, `target "grpc++" already declared`)
}

func TestGraph_Check(t *testing.T) {
	g := newGraph("grpc")
	require.NoError(t, g.add(&Target{Name: "a", Kind: KindLibrary, Deps: []*common.Label{
		common.NewLabel("grpc", "b"),
		common.NewLabel("protobuf", "libprotobuf"),
	}}))
	assert.Error(t, g.check())

	require.NoError(t, g.add(&Target{Name: "b", Kind: KindLibrary}))
	assert.NoError(t, g.check())

	g.Installs = []string{"c"}
	assert.EqualError(t, g.check(), `install() names undeclared target "c"`)
}

func TestSettings_CrossCompiling(t *testing.T) {
	assert.False(t, Settings{}.CrossCompiling())
	assert.False(t, Settings{TargetPlatform: "linux/amd64"}.CrossCompiling())
	assert.False(t, Settings{TargetPlatform: "linux/amd64", HostPlatform: "linux/amd64"}.CrossCompiling())
	assert.True(t, Settings{TargetPlatform: "linux/arm64", HostPlatform: "linux/amd64"}.CrossCompiling())
}
