package timeconfig

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeConfig holds the time-based defaults a tool-execution runtime
// actually consults: the backend dispatch deadline, the HTTP client
// timeout, and the fallback values idempotency/retry/circuit-breaker
// components fall back to when a ToolSpec leaves its own field unset.
type TimeConfig struct {
	// Tools/HTTP Timeouts
	DefaultHTTPTimeout          time.Duration
	DefaultToolExecutionTimeout time.Duration

	// Idempotency/Retry/Circuit-Breaker fallback defaults
	DefaultIdempotencyLockTTL     time.Duration
	DefaultRetryBaseDelay         time.Duration
	DefaultBreakerRecoveryTimeout time.Duration
}

var (
	globalConfig *TimeConfig
	configMutex  sync.RWMutex
	once         sync.Once
)

// IsTestMode determines if we're running in test mode
func IsTestMode() bool {
	// Check for standard Go test flag
	if isGoTest() {
		return true
	}

	// Check for custom environment variables
	if val := os.Getenv("AG_SDK_TEST_MODE"); val != "" {
		if testMode, err := strconv.ParseBool(val); err == nil {
			return testMode
		}
	}

	// Check for CI environment variables
	if os.Getenv("CI") != "" || os.Getenv("AG_SDK_CI") != "" {
		return true
	}

	return false
}

// isGoTest checks if we're running under 'go test'
func isGoTest() bool {
	// Check whether the binary name or any argument mentions "test"
	// (go test builds a *.test binary and passes -test.* flags)
	for _, arg := range os.Args {
		if strings.Contains(arg, "test") || strings.HasSuffix(arg, ".test") {
			return true
		}
	}

	// Check for test-specific environment variables
	if os.Getenv("GO_TEST") != "" {
		return true
	}

	return false
}

// GetConfig returns the global time configuration
func GetConfig() *TimeConfig {
	once.Do(func() {
		globalConfig = createConfig()
	})

	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig allows overriding the global configuration (mainly for tests)
func SetConfig(config *TimeConfig) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = config
}

// ResetConfig resets the configuration to defaults
func ResetConfig() {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = createConfig()
}

// createConfig creates a new TimeConfig based on the current environment
func createConfig() *TimeConfig {
	if IsTestMode() {
		return createTestConfig()
	}
	return createProductionConfig()
}

// createProductionConfig returns production-appropriate timeouts
func createProductionConfig() *TimeConfig {
	return &TimeConfig{
		DefaultHTTPTimeout:            60 * time.Second,
		DefaultToolExecutionTimeout:   30 * time.Second,
		DefaultIdempotencyLockTTL:     30 * time.Second,
		DefaultRetryBaseDelay:         100 * time.Millisecond,
		DefaultBreakerRecoveryTimeout: 30 * time.Second,
	}
}

// createTestConfig returns test-appropriate timeouts (much shorter)
func createTestConfig() *TimeConfig {
	return &TimeConfig{
		DefaultHTTPTimeout:            1 * time.Second,
		DefaultToolExecutionTimeout:   1 * time.Second,
		DefaultIdempotencyLockTTL:     1 * time.Second,
		DefaultRetryBaseDelay:         10 * time.Millisecond,
		DefaultBreakerRecoveryTimeout: 1 * time.Second,
	}
}

// Helper functions for accessing common timeouts

// HTTPTimeout returns the configured HTTP timeout
func HTTPTimeout() time.Duration {
	return GetConfig().DefaultHTTPTimeout
}

// ToolExecutionTimeout returns the configured tool execution timeout
func ToolExecutionTimeout() time.Duration {
	return GetConfig().DefaultToolExecutionTimeout
}

// IdempotencyLockTTL returns the fallback per-key lock TTL a ToolSpec's
// IdempotencyConfig falls back to when it leaves TTL unset.
func IdempotencyLockTTL() time.Duration {
	return GetConfig().DefaultIdempotencyLockTTL
}

// RetryBaseDelay returns the fallback base delay a ToolSpec's RetryConfig
// falls back to when it leaves BaseDelay unset.
func RetryBaseDelay() time.Duration {
	return GetConfig().DefaultRetryBaseDelay
}

// BreakerRecoveryTimeout returns the fallback half-open recovery timeout
// a ToolSpec's CircuitBreakerConfig falls back to when it leaves
// RecoveryTimeout unset.
func BreakerRecoveryTimeout() time.Duration {
	return GetConfig().DefaultBreakerRecoveryTimeout
}

// Environment returns the deployment environment named by the
// ENVIRONMENT variable, defaulting to "dev" when unset.
func Environment() string {
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		return val
	}
	return "dev"
}

// IsDevEnvironment reports whether Environment() names a non-production
// environment. No usage calculator in this module consults it: the
// Engine's default NoopUsageCalculator reports zero tokens and cost in
// every environment, and an injected calculator runs in every environment.
func IsDevEnvironment() bool {
	return Environment() != "production" && Environment() != "prod"
}
