package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"yqhp/kambo-hive/pkg/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Has reports whether a given field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) result() error {
	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// ValidateHost validates the sections a host process depends on.
func (v *Validator) ValidateHost(cfg *Config) error {
	v.errors = nil

	h := &cfg.Host
	if !isValidAddress(h.BindAddress) {
		v.addError("host.bind_address", "invalid address format, expected host:port or :port")
	}
	if h.AdvertiseAddress != "" && !isValidAddress(h.AdvertiseAddress) {
		v.addError("host.advertise_address", "invalid address format, expected host:port")
	}
	if h.GraphsDir == "" {
		v.addError("host.graphs_dir", "graphs directory is required")
	} else if info, err := os.Stat(h.GraphsDir); err != nil || !info.IsDir() {
		v.addError("host.graphs_dir", fmt.Sprintf("graphs directory %q is not readable", h.GraphsDir))
	}
	if h.ReportPath == "" {
		v.addError("host.report_path", "report path is required")
	}
	if _, err := types.ParseDistributionStrategy(h.Strategy); err != nil {
		v.addError("host.strategy", err.Error())
	}
	if h.Trials <= 0 {
		v.addError("host.trials", "trials must be positive")
	}
	if h.MaxAssignmentAge <= 0 {
		v.addError("host.max_assignment_age", "max assignment age must be positive")
	}
	if h.SweepInterval <= 0 {
		v.addError("host.sweep_interval", "sweep interval must be positive")
	}
	if h.PollInterval <= 0 {
		v.addError("host.poll_interval", "poll interval must be positive")
	}
	if h.MaxAttempts < 0 {
		v.addError("host.max_attempts", "max attempts must be non-negative")
	}
	if h.MaxFrameSize <= 0 {
		v.addError("host.max_frame_size", "max frame size must be positive")
	}

	if cfg.Snapshot.Enabled() && cfg.Snapshot.Interval <= 0 {
		v.addError("snapshot.interval", "snapshot interval must be positive")
	}
	if cfg.Snapshot.RedisAddr != "" && !isValidAddress(cfg.Snapshot.RedisAddr) {
		v.addError("snapshot.redis_addr", "invalid address format, expected host:port")
	}
	if cfg.Status.Address != "" && !isValidAddress(cfg.Status.Address) {
		v.addError("status.address", "invalid address format, expected host:port or :port")
	}

	v.validateDiscovery(&cfg.Discovery)
	v.validateLogging(&cfg.Logging)
	return v.result()
}

// ValidateWorker validates the sections a worker process depends on.
func (v *Validator) ValidateWorker(cfg *Config) error {
	v.errors = nil

	w := &cfg.Worker
	if w.HostAddress != "" && !isValidAddress(w.HostAddress) {
		v.addError("worker.host_address", "invalid address format, expected host:port")
	}
	if w.HostAddress == "" && !cfg.Discovery.Enabled {
		v.addError("worker.host_address", "host address is required when discovery is disabled")
	}
	if w.Strategy == "" {
		v.addError("worker.strategy", "compute strategy is required")
	}
	if w.HeartbeatInterval <= 0 {
		v.addError("worker.heartbeat_interval", "heartbeat interval must be positive")
	}
	if w.IdleBackoff <= 0 {
		v.addError("worker.idle_backoff", "idle backoff must be positive")
	}
	if w.ReconnectBackoff <= 0 {
		v.addError("worker.reconnect_backoff", "reconnect backoff must be positive")
	}
	if w.DialTimeout <= 0 {
		v.addError("worker.dial_timeout", "dial timeout must be positive")
	}
	if w.RequestTimeout <= 0 {
		v.addError("worker.request_timeout", "request timeout must be positive")
	}
	if w.MaxReconnectDelay < w.ReconnectBackoff {
		v.addError("worker.max_reconnect_delay", "max reconnect delay must not be below reconnect backoff")
	}

	v.validateDiscovery(&cfg.Discovery)
	v.validateLogging(&cfg.Logging)
	return v.result()
}

func (v *Validator) validateDiscovery(cfg *DiscoveryConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		v.addError("discovery.port", "port must be between 1 and 65535")
	}
	if cfg.Timeout <= 0 {
		v.addError("discovery.timeout", "timeout must be positive")
	}
	if cfg.BroadcastAddress == "" {
		v.addError("discovery.broadcast_address", "broadcast address is required")
	}
}

func (v *Validator) validateLogging(cfg *LoggingConfig) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required for file output")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, file, both", cfg.Output))
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	// Host can be empty (meaning all interfaces), an IP, or a hostname
	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}
	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
