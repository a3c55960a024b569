// Package config resolves kongstore settings from flags, environment
// variables and an optional YAML file.
//
// Precedence, highest first: explicitly set flags, KONGSTORE_* environment
// variables, the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/roach88/kongstore/internal/purchasing"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "KONGSTORE"

// Keys.
const (
	KeyAuthToken = "auth_token"
	KeyPlatform  = "platform"
	KeyLocale    = "locale"
	KeyJournal   = "journal"
	KeyFormat    = "format"
	KeyVerbose   = "verbose"
)

// Config holds resolved settings.
type Config struct {
	AuthToken string
	Platform  purchasing.Platform
	Locale    language.Tag
	Journal   string
	Format    string
	Verbose   bool
}

// New returns a viper instance with defaults and environment binding
// applied. Bind command flags to it with BindFlags before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPlatform, string(purchasing.PlatformWebGL))
	v.SetDefault(KeyLocale, "en")
	v.SetDefault(KeyFormat, "text")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyAuthToken, "")
	v.SetDefault(KeyJournal, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag in fs whose name matches a key. Flag names use
// dashes; keys use underscores.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		switch key {
		case KeyAuthToken, KeyPlatform, KeyLocale, KeyJournal, KeyFormat, KeyVerbose:
			if err := v.BindPFlag(key, f); err != nil {
				errs = append(errs, fmt.Errorf("bind flag %q: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// Load reads the optional config file at path and returns the validated
// configuration. An empty path skips the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	locale, err := language.Parse(v.GetString(KeyLocale))
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", v.GetString(KeyLocale), err)
	}

	cfg := &Config{
		AuthToken: v.GetString(KeyAuthToken),
		Platform:  purchasing.Platform(v.GetString(KeyPlatform)),
		Locale:    locale,
		Journal:   v.GetString(KeyJournal),
		Format:    v.GetString(KeyFormat),
		Verbose:   v.GetBool(KeyVerbose),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Platform {
	case purchasing.PlatformWebGL, purchasing.PlatformDesktop, purchasing.PlatformMobile:
	default:
		return fmt.Errorf("invalid platform %q: must be one of webgl, desktop, mobile", c.Platform)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be one of [text json]", c.Format)
	}
	return nil
}
