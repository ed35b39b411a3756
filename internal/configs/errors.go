package configs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a ConfigError.
type ErrorKind int

const (
	MissingEnv ErrorKind = iota
	MissingProvider
	MissingRouters
	InvalidValue
	UnknownNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case MissingProvider:
		return "missing provider"
	case MissingRouters:
		return "missing routers"
	case InvalidValue:
		return "invalid value"
	case UnknownNetwork:
		return "unknown network"
	default:
		return "missing env"
	}
}

// Sentinels for errors.Is against a *ConfigError of the matching kind.
var (
	ErrMissingEnv      = errors.New("missing environment variable")
	ErrMissingProvider = errors.New("missing flash-loan provider address")
	ErrMissingRouters  = errors.New("missing router addresses")
	ErrInvalidValue    = errors.New("invalid configuration value")
	ErrUnknownNetwork  = errors.New("unknown network")
)

// ConfigError is returned before any network interaction happens.
// Missing lists the offending variable names, never their values.
type ConfigError struct {
	Kind    ErrorKind
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if len(e.Missing) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrMissingEnv:
		return e.Kind == MissingEnv
	case ErrMissingProvider:
		return e.Kind == MissingProvider
	case ErrMissingRouters:
		return e.Kind == MissingRouters
	case ErrInvalidValue:
		return e.Kind == InvalidValue
	case ErrUnknownNetwork:
		return e.Kind == UnknownNetwork
	}
	return false
}

func missing(kind ErrorKind, names ...string) *ConfigError {
	return &ConfigError{Kind: kind, Missing: names}
}

func invalid(name string, err error) *ConfigError {
	return &ConfigError{Kind: InvalidValue, Missing: []string{name}, Err: err}
}
