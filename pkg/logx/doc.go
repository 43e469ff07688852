// Package logx wraps zerolog behind a small Logger value that survives
// runtime config changes (level, sinks) without handing out stale loggers.
package logx
