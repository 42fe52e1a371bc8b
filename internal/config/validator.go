package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks everything except the broker topology, which is
// validated structurally by internal/schema before any broker I/O.
func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validatePushGateway(cfg.PushGateway); err != nil {
		errors = append(errors, err)
	}

	if err := validateAudit(cfg.Audit); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if cfg.MongoDB.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validatePushGateway(cfg PushGatewayConfig) error {
	if cfg.URL == "" {
		return &ValidationError{
			Field:   "pushgateway.url",
			Message: "push gateway URL is required",
		}
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Host == "" || !strings.HasPrefix(parsed.Scheme, "http") {
		return &ValidationError{
			Field:   "pushgateway.url",
			Message: fmt.Sprintf("push gateway URL must be a valid http(s) URL, got %q", cfg.URL),
		}
	}

	if cfg.RequestTimeout <= 0 {
		return &ValidationError{
			Field:   "pushgateway.request_timeout",
			Message: "request timeout must be positive",
		}
	}

	return nil
}

func validateAudit(cfg AuditConfig) error {
	if len(cfg.Brokers) == 0 {
		return nil // audit stream is optional
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("audit.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "audit.topic",
			Message: "audit topic is required when brokers are configured",
		}
	}

	return nil
}
