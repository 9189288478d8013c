// Package log provides structured logging built on zerolog: a global
// logger configured once via Init, plus helpers for child loggers
// scoped to a worker, category, or task so call sites don't repeat
// the same fields on every line.
package log
