package schema

import (
	"errors"
	"fmt"
)

// ErrConfig marks schema/implementation drift. These are programming
// mistakes and must abort rather than reach end users.
var ErrConfig = errors.New("query configuration error")

// ConfigError describes one configuration problem.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return ErrConfig.Error() + ": " + e.Msg
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a ConfigError for other packages (compiler, models).
func ConfigErrorf(format string, args ...any) error {
	return configErrorf(format, args...)
}

// IsConfigError reports whether err is, or wraps, a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
