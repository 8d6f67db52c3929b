// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultPort is the gateway listen port.
const DefaultPort = 11435

// DefaultReadTimeout for the HTTP server.
const DefaultReadTimeout = 60 * time.Second

// DefaultWriteTimeout for the HTTP server (long enough for streamed responses).
const DefaultWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// =============================================================================
// CLASSIFICATION AND PROXYING
// =============================================================================

// DefaultClassifyTimeout bounds a single embedding or LLM-verification call.
const DefaultClassifyTimeout = 5 * time.Second

// DefaultProxyTimeout bounds a non-streaming forward to the downstream LLM.
const DefaultProxyTimeout = 30 * time.Second

// DefaultCommandPrefix triggers the command router.
const DefaultCommandPrefix = "run:"

// DefaultEchoToolName is the tool whose results the echo router returns verbatim.
const DefaultEchoToolName = "exec"

// DefaultGreetingMaxLen is the greeting pre-filter length bound. Anything longer
// is never a greeting, so the cascade is skipped entirely.
const DefaultGreetingMaxLen = 3000

// =============================================================================
// STATS AND PERSISTENCE
// =============================================================================

// DefaultMaxRecentLogs is the size of the in-memory routing log ring buffer.
const DefaultMaxRecentLogs = 1000

// DefaultLogMessageLen truncates recorded messages in stats entries.
const DefaultLogMessageLen = 100

// DefaultLogContentLen truncates recorded response content in stats entries.
const DefaultLogContentLen = 50

// DefaultMaxConfigBackups is how many rotated config backups are kept on save.
const DefaultMaxConfigBackups = 3
