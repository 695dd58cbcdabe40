package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, for example
// BRANDQUEST_REMOTE_URL for remote.url.
const EnvPrefix = "BRANDQUEST"

var defaults = map[string]any{
	"database":            "brandquest.db",
	"record_id":           "default",
	"catalog":             "",
	"remote.url":          "",
	"remote.token":        "",
	"generation.provider": "scripted",
	"generation.model":    "",
	"generation.api_key":  "",
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the optional config file at path into v, applies defaults and
// BRANDQUEST_* environment overrides, validates the merged settings and
// returns the typed config. The file type follows the extension (json,
// yaml or yml).
func Load(v *viper.Viper, path string) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("generation.api_key", EnvPrefix+"_GENERATION_API_KEY", "GEMINI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := ValidateSettings(settings(v)); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// settings rebuilds the nested settings map from resolved values so that
// environment overrides are validated too.
func settings(v *viper.Viper) map[string]any {
	out := map[string]any{}
	for _, key := range v.AllKeys() {
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v.Get(key)
	}
	return out
}
