package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "TURBO"

// Settings holds the run-level options that do not live in turbo.json:
// credentials and locations for the caches.
//
// Precedence is flags > environment > repository config > user config > defaults.
type Settings struct {
	// Token is the bearer token for the remote cache API.
	Token string `mapstructure:"token" envconfig:"TOKEN"`
	// TeamID is the remote cache team ID.
	TeamID string `mapstructure:"teamId" envconfig:"TEAMID"`
	// TeamSlug is the remote cache team slug.
	TeamSlug string `mapstructure:"teamSlug" envconfig:"TEAM"`
	// APIURL is the base URL of the remote cache API.
	APIURL string `mapstructure:"apiUrl" envconfig:"API"`
	// CacheDir is the local cache directory, relative to the repository root
	// unless absolute.
	CacheDir string `mapstructure:"cacheDir" envconfig:"CACHE_DIR"`
	// RemoteCacheTimeout is the per-request timeout in seconds.
	RemoteCacheTimeout int `mapstructure:"remoteCacheTimeout" envconfig:"REMOTE_CACHE_TIMEOUT"`
}

// IsLoggedIn returns true if we have a token and either a team ID or team slug.
func (s *Settings) IsLoggedIn() bool {
	return s.Token != "" && (s.TeamID != "" || s.TeamSlug != "")
}

// DefaultSettings returns settings populated with default values.
func DefaultSettings() *Settings {
	return &Settings{
		APIURL:             DefaultAPIURL,
		CacheDir:           filepath.FromSlash(DefaultCacheDir),
		RemoteCacheTimeout: DefaultRemoteCacheTimeout,
	}
}

// UserConfigPath returns the location of the per-user settings file.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "turborepo", "config.json"), nil
}

// RepoConfigPath returns the location of the repository settings file.
func RepoConfigPath(rootDir string) string {
	return filepath.Join(rootDir, ".turbo", "config.json")
}

// LoadSettings resolves settings for the repository at rootDir from the
// user config file, the repository config file and TURBO_* variables.
func LoadSettings(rootDir string) (*Settings, error) {
	s := DefaultSettings()

	if path, err := UserConfigPath(); err == nil {
		if err := mergeSettingsFile(s, path); err != nil {
			return nil, err
		}
	}
	if err := mergeSettingsFile(s, RepoConfigPath(rootDir)); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return nil, fmt.Errorf("invalid environment variable: %w", err)
	}

	if s.Token == "" && IsCI() {
		s.Token = os.Getenv("VERCEL_ARTIFACTS_TOKEN")
		if s.TeamID == "" {
			s.TeamID = os.Getenv("VERCEL_ARTIFACTS_OWNER")
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks settings values.
func (s *Settings) Validate() error {
	if _, err := url.ParseRequestURI(s.APIURL); err != nil {
		return &ValidationError{Field: "apiUrl", Message: fmt.Sprintf("%q is an invalid URL", s.APIURL)}
	}
	if s.RemoteCacheTimeout <= 0 {
		return &ValidationError{Field: "remoteCacheTimeout", Message: "must be a positive number of seconds"}
	}
	if s.CacheDir == "" {
		return &ValidationError{Field: "cacheDir", Message: "must not be empty"}
	}
	return nil
}

// mergeSettingsFile overlays the keys present in a JSON settings file.
// A missing file is not an error.
func mergeSettingsFile(s *Settings, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.Unmarshal(s); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// IsCI returns true if running in a CI/CD environment.
func IsCI() bool {
	return !isatty.IsTerminal(os.Stdout.Fd()) || os.Getenv("CI") != ""
}
