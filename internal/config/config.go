package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds the resolved runtime configuration. Environment variables win
// over the preferences file.
type Config struct {
	Homeserver string
	Username   string
	Password   string
	SSLVerify  bool

	HistorySize  int
	PollInterval time.Duration
	Notify       bool
	Archive      bool
}

// Defaults mirrored by the preferences file.
const (
	DefaultHomeserver  = "https://matrix.org"
	DefaultHistorySize = 50
	DefaultPollSeconds = 3
)

// configDirOverride is set by tests to redirect ConfigDir.
var configDirOverride string

// ConfigDir returns the config directory for matty.
func ConfigDir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "matty")
}

// DataDir returns ~/.local/share/matty, creating it if needed. Handle state
// files, the message archive, and the log file live here.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", "matty")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// Preferences holds user-configurable settings persisted to
// ~/.config/matty/config.json.
type Preferences struct {
	Homeserver   string `json:"homeserver,omitempty"`
	Username     string `json:"username,omitempty"`
	HistorySize  int    `json:"history_size,omitempty"`
	PollSeconds  int    `json:"poll_seconds,omitempty"`
	Notify       *bool  `json:"notify,omitempty"`
	ArchiveSync  bool   `json:"archive_sync,omitempty"`
}

// LoadPreferences reads config.json, returning zero-value preferences when
// the file is missing or unreadable.
func LoadPreferences() Preferences {
	var p Preferences
	dir := ConfigDir()
	if dir == "" {
		return p
	}
	path := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		fmt.Fprintf(os.Stderr, "config: parse %s: %v\n", path, err)
		return Preferences{}
	}
	warnInsecurePermissions(path)
	return p
}

// SavePreferences writes config.json with restrictive permissions.
func SavePreferences(p Preferences) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// Load resolves the runtime configuration: environment first, then the
// preferences file, then defaults. The password is never read from the
// preferences file.
func Load() Config {
	prefs := LoadPreferences()

	cfg := Config{
		Homeserver:   firstNonEmpty(os.Getenv("MATTY_HOMESERVER"), os.Getenv("MATRIX_HOMESERVER"), prefs.Homeserver, DefaultHomeserver),
		Username:     firstNonEmpty(os.Getenv("MATRIX_USERNAME"), prefs.Username),
		Password:     os.Getenv("MATRIX_PASSWORD"),
		SSLVerify:    strings.ToLower(os.Getenv("MATRIX_SSL_VERIFY")) != "false",
		HistorySize:  DefaultHistorySize,
		PollInterval: DefaultPollSeconds * time.Second,
		Notify:       true,
		Archive:      prefs.ArchiveSync,
	}

	if prefs.HistorySize > 0 {
		cfg.HistorySize = prefs.HistorySize
	}
	if prefs.PollSeconds > 0 {
		cfg.PollInterval = time.Duration(prefs.PollSeconds) * time.Second
	}
	if prefs.Notify != nil {
		cfg.Notify = *prefs.Notify
	}
	if v := os.Getenv("MATTY_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistorySize = n
		}
	}
	if v := os.Getenv("MATTY_POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}
	return cfg
}

// Validate reports whether credentials are present, with a user-facing hint.
func (c Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("username and password required: set MATRIX_USERNAME and MATRIX_PASSWORD")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// warnInsecurePermissions prints a warning to stderr if the config file is
// readable by group or others. On Windows, file permission bits don't map
// to ACLs, so the check is skipped.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s is readable by others (mode %o). Run: chmod 600 %s\n",
			path, info.Mode().Perm(), path)
	}
}
