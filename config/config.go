// Package config layers depresolve's settings: built-in defaults, then depresolve.yaml in the workspace, then
// DEPRESOLVE_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/tablog/depresolve/common"
	"github.com/tablog/depresolve/lockfile"
	"github.com/tablog/depresolve/resolve"
)

// Keys double as flag names.
const (
	KeyWorkspaceDir   = "workspace_dir"
	KeyVendorDir      = "vendor_dir"
	KeyCacheDir       = "cache_dir"
	KeyBuildDir       = "build_dir"
	KeyRegistries     = "registries"
	KeyTargetPlatform = "target_platform"
	KeyHostToolDirs   = "host_tool_dirs"
	KeyHistoryDB      = "history_db"
	KeyLockFile       = "lock_file"
	KeyVerbose        = "verbose"
	KeyLogJSON        = "log_json"
)

const (
	ConfigName       = "depresolve"
	EnvPrefix        = "DEPRESOLVE"
	DefaultVendorDir = "third_party"
	DefaultBuildDir  = "build/_deps"
)

// DefaultRegistries are the install prefixes CMake's find_package searches when nothing else is configured.
var DefaultRegistries = []string{"file:///usr/local", "file:///usr"}

// Settings is the merged configuration. Paths are absolute once Load returns.
type Settings struct {
	WorkspaceDir   string
	VendorDir      string
	CacheDir       string
	BuildDir       string
	Registries     []string
	TargetPlatform string
	HostPlatform   string
	HostToolDirs   []string
	// HistoryDB is empty when no history is kept.
	HistoryDB string
	LockFile  string
	Verbose   bool
	LogJSON   bool
}

// HostPlatform is the platform this binary runs on, as "os/arch".
func HostPlatform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// New returns a viper instance with depresolve's environment binding. Callers bind flags and then call Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyWorkspaceDir, ".")
	v.SetDefault(KeyBuildDir, DefaultBuildDir)
	v.SetDefault(KeyLockFile, lockfile.FileName)
	return v
}

// Load reads depresolve.yaml from the workspace (or the file named by `configFile`) and returns the merged
// settings.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	wsDir, err := filepath.Abs(expand(v.GetString(KeyWorkspaceDir)))
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		v.SetConfigFile(expand(configFile))
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(wsDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	s := &Settings{
		WorkspaceDir:   wsDir,
		VendorDir:      v.GetString(KeyVendorDir),
		CacheDir:       v.GetString(KeyCacheDir),
		BuildDir:       v.GetString(KeyBuildDir),
		Registries:     v.GetStringSlice(KeyRegistries),
		TargetPlatform: v.GetString(KeyTargetPlatform),
		HostPlatform:   HostPlatform(),
		HostToolDirs:   v.GetStringSlice(KeyHostToolDirs),
		HistoryDB:      v.GetString(KeyHistoryDB),
		LockFile:       v.GetString(KeyLockFile),
		Verbose:        v.GetBool(KeyVerbose),
		LogJSON:        v.GetBool(KeyLogJSON),
	}
	if s.TargetPlatform == "" {
		s.TargetPlatform = s.HostPlatform
	}
	if len(s.HostToolDirs) == 0 {
		s.HostToolDirs = filepath.SplitList(os.Getenv("PATH"))
	}
	if s.CacheDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("can't determine cache directory: %w", err)
		}
		s.CacheDir = filepath.Join(home, ".cache", "depresolve")
	}
	s.CacheDir = s.path(s.CacheDir)
	s.BuildDir = s.path(s.BuildDir)
	s.LockFile = s.path(s.LockFile)
	if s.HistoryDB != "" {
		s.HistoryDB = s.path(s.HistoryDB)
	}
	for i, dir := range s.HostToolDirs {
		s.HostToolDirs[i] = s.path(dir)
	}
	return s, nil
}

// ApplyWorkspace fills the vendor directory and registries from the workspace file where nothing more specific set
// them, then applies the built-in defaults for both.
func (s *Settings) ApplyWorkspace(ws *resolve.Workspace) {
	if ws != nil {
		if s.VendorDir == "" {
			s.VendorDir = ws.VendorDir
		}
		if len(s.Registries) == 0 {
			s.Registries = ws.Registries
		}
	}
	if s.VendorDir == "" {
		s.VendorDir = DefaultVendorDir
	}
	if len(s.Registries) == 0 {
		s.Registries = append([]string(nil), DefaultRegistries...)
	}
	s.VendorDir = s.path(s.VendorDir)
}

// Env returns the strategy environment for these settings.
func (s *Settings) Env(logger *slog.Logger) *resolve.Env {
	return &resolve.Env{
		WsDir:          s.WorkspaceDir,
		VendorDir:      s.VendorDir,
		CacheDir:       s.CacheDir,
		BuildDir:       s.BuildDir,
		Registries:     s.Registries,
		TargetPlatform: s.TargetPlatform,
		HostPlatform:   s.HostPlatform,
		HostToolDirs:   s.HostToolDirs,
		Logger:         logger,
	}
}

func (s *Settings) path(p string) string {
	return common.NormalizePath(s.WorkspaceDir, expand(p))
}

func expand(p string) string {
	if expanded, err := homedir.Expand(p); err == nil {
		return expanded
	}
	return p
}
