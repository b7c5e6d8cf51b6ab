package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Domain errors describe failures in the desired-state pipeline. They are
// terminal for the current document: reconciliation surfaces them in status
// and waits for a spec change rather than retrying.

// ErrValidation indicates a malformed or incomplete desired-state document.
// It is raised before any cluster mutation.
var ErrValidation = errors.New("validation error")

// ErrTemplateExpansion indicates a required value had no source and no
// default during workload expansion.
var ErrTemplateExpansion = errors.New("template expansion error")

// ErrMaterialization indicates an init-time file copy or permission failure.
// It is fatal to pod startup; recovery is the platform's pod-restart policy.
var ErrMaterialization = errors.New("materialization error")

// ErrConnectivity indicates the control plane (or the gateway socket) could
// not be reached.
var ErrConnectivity = errors.New("connectivity error")

// Transient errors indicate temporary conditions that should be retried.
// These errors typically result in requeue with a delay.

// ErrTransientConnection indicates a transient connection error that should be retried.
// This includes timeouts, connection refused, DNS resolution failures, and network unreachable errors.
var ErrTransientConnection = errors.New("transient connection error")

// ErrTransientKubernetesAPI indicates a transient Kubernetes API error that should be retried.
// This includes rate limiting, temporary server errors, and network issues.
var ErrTransientKubernetesAPI = errors.New("transient Kubernetes API error")

// ErrPrerequisitesMissing indicates that required prerequisites are missing
// and reconciliation should wait for them to be created (e.g. the credentials
// Secret the pre-flight procedure writes).
var ErrPrerequisitesMissing = errors.New("prerequisites missing")

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return err != nil && errors.Is(err, ErrValidation)
}

// IsTemplateExpansion checks if an error is a template expansion error.
func IsTemplateExpansion(err error) bool {
	return err != nil && errors.Is(err, ErrTemplateExpansion)
}

// IsMaterialization checks if an error is a materialization error.
func IsMaterialization(err error) bool {
	return err != nil && errors.Is(err, ErrMaterialization)
}

// IsConnectivity checks if an error is a connectivity error.
func IsConnectivity(err error) bool {
	return err != nil && errors.Is(err, ErrConnectivity)
}

// WrapValidation wraps an error as a validation error.
// If the error is already a validation error, it is returned as-is.
func WrapValidation(err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// WrapTemplateExpansion wraps an error as a template expansion error.
// Validation errors pass through unchanged so the original class survives.
func WrapTemplateExpansion(err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsTemplateExpansion(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTemplateExpansion, err)
}

// WrapMaterialization wraps an error as a materialization error.
func WrapMaterialization(err error) error {
	if err == nil {
		return nil
	}
	if IsMaterialization(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMaterialization, err)
}

// WrapConnectivity wraps an error as a connectivity error.
func WrapConnectivity(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivity(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}

// WrapPrerequisitesMissing wraps an error as a prerequisites missing error.
func WrapPrerequisitesMissing(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPrerequisitesMissing, err)
}

// IsTransientConnection checks if an error is a transient connection error.
// This includes network timeouts, connection refused, DNS failures, and similar issues.
func IsTransientConnection(err error) bool {
	if err == nil {
		return false
	}

	// Check for our sentinel error
	if errors.Is(err, ErrTransientConnection) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Check for common transient connection error patterns
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"context deadline exceeded",
		"timeout",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"dial tcp",
		"connection closed",
		"broken pipe",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	// Check for net.Error types that indicate transient issues
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	// Check for DNS errors
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTransientKubernetesAPI checks if an error is a transient Kubernetes API error.
func IsTransientKubernetesAPI(err error) bool {
	if err == nil {
		return false
	}

	// Check for our sentinel error
	if errors.Is(err, ErrTransientKubernetesAPI) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Check for Kubernetes API transient error patterns
	transientPatterns := []string{
		"rate limit",
		"too many requests",
		"server error",
		"service unavailable",
		"internal server error",
		"context deadline exceeded",
		"timeout",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// WrapTransientConnection wraps an error as a transient connection error.
// If the error is already a transient connection error, it is returned as-is.
func WrapTransientConnection(err error) error {
	if err == nil {
		return nil
	}

	if IsTransientConnection(err) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrTransientConnection, err)
}

// WrapTransientKubernetesAPI wraps an error as a transient Kubernetes API error.
func WrapTransientKubernetesAPI(err error) error {
	if err == nil {
		return nil
	}

	if IsTransientKubernetesAPI(err) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrTransientKubernetesAPI, err)
}

// IsTransient checks if an error is transient (should be retried).
// Returns true for transient connection or Kubernetes API errors.
func IsTransient(err error) bool {
	return IsTransientConnection(err) || IsTransientKubernetesAPI(err)
}

// IsTerminal checks if an error is terminal for the current document
// (requires a spec change rather than a retry).
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrTemplateExpansion) ||
		errors.Is(err, ErrMaterialization)
}

// ShouldRequeue determines if an error should trigger a requeue.
// Transient errors should requeue; terminal document errors should not.
// Returns (shouldRequeue, requeueAfter).
func ShouldRequeue(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}

	// Missing prerequisites heal when the user creates them; poll slowly.
	if errors.Is(err, ErrPrerequisitesMissing) {
		return true, 30 * time.Second
	}

	if IsTransient(err) {
		return true, 5 * time.Second
	}

	// Terminal errors wait for a spec change.
	if IsTerminal(err) {
		return false, 0
	}

	// For unknown errors, default to requeue (controller-runtime will handle backoff)
	return true, 0
}

// IsCRDMissingError checks if an error indicates that a CRD is not installed.
// This requires user intervention (installing the CRDs), not a retry loop.
func IsCRDMissingError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no matches for kind") ||
		strings.Contains(errStr, "no kind is registered for the type") ||
		strings.Contains(errStr, "could not find the requested resource")
}
