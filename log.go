package bgnormalize

import "github.com/rs/zerolog"

// logger is the package diagnostic logger. It is silent until SetLogger is
// called.
var logger = zerolog.Nop()

// SetLogger replaces the package logger. It is meant to be called once during
// program setup, before any fit or normalization runs.
func SetLogger(l zerolog.Logger) {
	logger = l.With().Str("component", "bgnormalize").Logger()
}
