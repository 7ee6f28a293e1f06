// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a small Logger value plus a Service that owns the sinks
// (console, file) and can swap levels/outputs at runtime when the
// config file is reloaded. The zero Logger value is a safe no-op.
package logx
