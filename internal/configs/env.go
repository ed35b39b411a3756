package configs

import (
	"strings"

	"github.com/spf13/viper"
)

// Environment is the read-only source every resolver reads from.
// Components never call os.Getenv themselves.
type Environment interface {
	// Lookup returns the trimmed value for key and whether it is set to a
	// non-empty value.
	Lookup(key string) (string, bool)
}

// MapEnvironment is an Environment backed by a plain map.
type MapEnvironment map[string]string

func (m MapEnvironment) Lookup(key string) (string, bool) {
	v, ok := m[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// ViperEnvironment reads from a viper instance: bound flags first, then the
// process environment, then an optional config file.
type ViperEnvironment struct {
	v *viper.Viper
}

// NewViperEnvironment wraps v. AutomaticEnv is enabled so that every key
// falls through to the variable of the same (upper-case) name.
func NewViperEnvironment(v *viper.Viper) *ViperEnvironment {
	v.AutomaticEnv()
	return &ViperEnvironment{v: v}
}

func (e *ViperEnvironment) Lookup(key string) (string, bool) {
	if !e.v.IsSet(key) {
		return "", false
	}
	val := strings.TrimSpace(e.v.GetString(key))
	return val, val != ""
}

func getEnvOrDefault(env Environment, key, defaultValue string) string {
	if value, ok := env.Lookup(key); ok {
		return value
	}
	return defaultValue
}
