// Package config centralizes default configuration constants and
// environment-variable readers for cortexdx.
package config

import (
	"os"
	"strconv"
)

// Default configuration constants for diagnostic runs and probe orchestration.
const (
	DefaultEventBufferSize   = 10000
	DefaultChannelBufferSize = 10000
	DefaultSessionTTLMs      = 900000 // 15 minutes
	DefaultSessionIdleMs     = 60000  // 1 minute
	MinSessionTimeoutMs      = 1000

	// DefaultProbeParallelism is the default bound on concurrent probe
	// workers when the caller does not override it.
	DefaultProbeParallelism = 8

	// DefaultProbeTimeoutMs is the default per-probe wall-clock budget.
	DefaultProbeTimeoutMs = 60000

	// DefaultEvidenceCap bounds evidence excerpt length before truncation.
	DefaultEvidenceCap = 2000

	// DefaultConversationIdleTimeoutMs is the C5 session idle timeout.
	DefaultConversationIdleTimeoutMs = 30 * 60 * 1000

	// DefaultConversationHistoryWindow is the max retained messages per session.
	DefaultConversationHistoryWindow = 10

	// DefaultPromptTokenCap bounds worst-case prompt construction cost.
	DefaultPromptTokenCap = 512
)

// Environment variable names, bit-exact where persistence or interop matters.
const (
	EnvPatternKey              = "CORTEXDX_PATTERN_KEY"
	EnvEnvironment             = "CORTEXDX_ENV"
	EnvOTelExporter            = "CORTEXDX_OTEL_EXPORTER"
	EnvAcademicProviderTimeout = "ACADEMIC_PROVIDER_TIMEOUT_MS"
	EnvAcademicProviderMaxConc = "ACADEMIC_PROVIDER_MAX_CONCURRENCY"
)

// IsProduction reports whether CORTEXDX_ENV is set to "production".
// Absence or any other value is treated as development, matching the
// teacher's convention of defaulting permissively for local iteration.
func IsProduction() bool {
	return os.Getenv(EnvEnvironment) == "production"
}

// AcademicProviderTimeoutMs returns ACADEMIC_PROVIDER_TIMEOUT_MS or its
// default of 20000ms.
func AcademicProviderTimeoutMs() int {
	return envInt(EnvAcademicProviderTimeout, 20000)
}

// AcademicProviderMaxConcurrency returns ACADEMIC_PROVIDER_MAX_CONCURRENCY
// or its default of 3, floored at 1.
func AcademicProviderMaxConcurrency() int {
	v := envInt(EnvAcademicProviderMaxConc, 3)
	if v < 1 {
		v = 1
	}
	return v
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
