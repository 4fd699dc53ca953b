// Package config loads the engine's layered configuration: compiled-in
// defaults, an optional YAML file, then environment variables, in
// ascending priority. No per-field CLI flags are bound; the CLI's only
// configuration flag, --config, selects the YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DRIVESYNC"

// Config is the engine's full configuration surface. A single instance is
// populated once at host startup and passed by reference to every
// component constructor; it is not safe to mutate concurrently with
// component use.
type Config struct {
	// CacheDir holds the encrypted index database (file_index.db).
	CacheDir string
	// DataDir holds the keyfile (.keyfile).
	DataDir string

	// RemoteName is the short colon-suffixed prefix addressing the remote
	// namespace, e.g. "drive".
	RemoteName string
	// SyncRoot is the local directory mirrored against the remote and
	// watched for changes.
	SyncRoot string

	// ListerPath overrides automatic discovery of the external lister
	// binary. Empty means "discover".
	ListerPath string
	// ListerBundleEnvVar names the environment variable whose value is
	// treated as a bundled-binary root when discovering the lister.
	ListerBundleEnvVar string

	// DebounceWindow is the watcher's minimum quiescent duration before a
	// sync fires.
	DebounceWindow time.Duration

	// DisableFTS forces the index store onto its LIKE-fallback search
	// path, for tests that want to exercise that branch deterministically.
	DisableFTS bool

	// ReachURL is the HTTPS reachability probe endpoint for the network
	// monitor.
	ReachURL string
	// Interfaces is the fixed set of network interface names consulted for
	// carrier state.
	Interfaces []string

	// UploadLimitBPS / DownloadLimitBPS are informational throttle
	// defaults in bytes/sec; 0 means unlimited.
	UploadLimitBPS   int64
	DownloadLimitBPS int64

	// LogLevel is one of debug/info/warn/error.
	LogLevel string
	// LogFile is an optional path to additionally append log records to.
	LogFile string
}

// Load builds a Config from defaults, an optional YAML file discovered on
// the standard search path, environment variables prefixed DRIVESYNC_, and
// the given explicit file path override (may be empty).
func Load(explicitConfigPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if explicitConfigPath != "" {
		v.SetConfigFile(explicitConfigPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "drivesync"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "drivesync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("cache_dir", filepath.Join(home, ".cache", "drivesync"))
	v.SetDefault("data_dir", filepath.Join(home, ".local", "share", "drivesync"))
	v.SetDefault("remote_name", "drive")
	v.SetDefault("sync_root", filepath.Join(home, "ProtonDrive"))
	v.SetDefault("lister_path", "")
	v.SetDefault("lister_bundle_env_var", "DRIVESYNC_BUNDLE_ROOT")
	v.SetDefault("debounce_window", "3s")
	v.SetDefault("disable_fts", false)
	v.SetDefault("reach_url", "https://drive.proton.me/generate_204")
	v.SetDefault("interfaces", []string{"eth0", "eth1", "wlan0", "wlp2s0", "enp0s3"})
	v.SetDefault("upload_limit_bps", 0)
	v.SetDefault("download_limit_bps", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	debounce, err := time.ParseDuration(v.GetString("debounce_window"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid debounce_window %q: %w", v.GetString("debounce_window"), err)
	}

	cfg := &Config{
		CacheDir:            v.GetString("cache_dir"),
		DataDir:             v.GetString("data_dir"),
		RemoteName:          v.GetString("remote_name"),
		SyncRoot:            v.GetString("sync_root"),
		ListerPath:          v.GetString("lister_path"),
		ListerBundleEnvVar:  v.GetString("lister_bundle_env_var"),
		DebounceWindow:      debounce,
		DisableFTS:          v.GetBool("disable_fts"),
		ReachURL:            v.GetString("reach_url"),
		Interfaces:          v.GetStringSlice("interfaces"),
		UploadLimitBPS:      v.GetInt64("upload_limit_bps"),
		DownloadLimitBPS:    v.GetInt64("download_limit_bps"),
		LogLevel:            v.GetString("log_level"),
		LogFile:             v.GetString("log_file"),
	}
	return cfg, nil
}

// KeyfilePath is the well-known per-user path to the wrapped database key.
func (c *Config) KeyfilePath() string {
	return filepath.Join(c.DataDir, ".keyfile")
}

// DatabasePath is the well-known per-user path to the index database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.CacheDir, "file_index.db")
}

// LockPath is the advisory single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.CacheDir, "drivesync.lock")
}
