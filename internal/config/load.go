// Package config loads and validates the agent's YAML configuration
// document: settings, sources, and sinks.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/viper"

	"github.com/AleksandrNi/token-agent/internal/model"
)

// envPattern matches ${VAR} and ${VAR:default} placeholders. Substitution
// happens on the raw file bytes before any YAML parsing, per this
// engine's external-interfaces contract — viper's own AutomaticEnv maps
// environment variables onto specific config keys, which is a different
// mechanism from inline placeholder substitution, so this pass is done by
// hand with the standard library before handing the expanded bytes to
// viper.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

// Load reads path, expands ${VAR}/${VAR:default} placeholders against the
// process environment, and decodes the result into a Config. It does not
// validate; call Validate separately.
func Load(path string) (model.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("reading config file %q: %w", path, err)
	}

	expanded := expandEnv(raw)

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
		return model.Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	applyDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		return model.Config{}, fmt.Errorf("decoding config file %q: %w", path, err)
	}
	return cfg, nil
}

func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		hasDefault := len(groups[2]) > 0
		def := string(groups[3])

		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		if hasDefault {
			return []byte(def)
		}
		return match
	})
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("settings.safety_margin_seconds", int64(10))
	v.SetDefault("settings.retry.attempts", 3)
	v.SetDefault("settings.retry.base_delay_ms", int64(100))
	v.SetDefault("settings.retry.max_delay_ms", int64(2000))
	v.SetDefault("settings.metrics.path", "/metrics")
	v.SetDefault("settings.metrics.is_enabled", true)
	v.SetDefault("settings.server.host", "0.0.0.0")
	v.SetDefault("settings.server.port", 8080)
	v.SetDefault("settings.logging.level", "info")
	v.SetDefault("settings.logging.format", "json")
}
