// Package logx is a thin wrapper around zerolog.
//
// It gives the rest of the codebase a stable, minimal logging API
// (value Logger + Field closures) and a Service that supports live
// re-configuration of level and sinks without re-plumbing loggers.
package logx
