// Package common provides the ambient logger construction shared by
// every binary in the tree: development builds get human-readable console
// output, production builds get structured JSON.
package common

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a *zap.Logger for the given environment ("production"
// or anything else, treated as development).
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// NewNamedLogger builds a logger for environment and tags every entry
// with a "component" field.
func NewNamedLogger(environment, component string) (*zap.Logger, error) {
	log, err := NewLogger(environment)
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("component", component)), nil
}

// NewSugaredLogger wraps NewLogger's result in a SugaredLogger for
// call sites outside the hot path, where the printf-style convenience
// outweighs the raw logger's lower allocation cost.
func NewSugaredLogger(environment string) (*zap.SugaredLogger, error) {
	log, err := NewLogger(environment)
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

// Level maps a config string ("debug", "info", "warn", "error") to a
// zapcore.Level, defaulting to Info for an unrecognized value.
func Level(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
