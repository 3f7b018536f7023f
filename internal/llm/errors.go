package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoBackend means auto resolution found neither a reachable local
	// endpoint nor a configured hosted key.
	ErrNoBackend = errors.New("no model backend available")

	// ErrNoAPIKey means the hosted backend was selected without a key.
	ErrNoAPIKey = errors.New("hosted backend requires an API key")
)

// BudgetError is returned when the metering admission check denies a
// request. No network call was made.
type BudgetError struct {
	Reason string
}

func (e *BudgetError) Error() string {
	return "request denied by usage limits: " + e.Reason
}

func IsBudgetError(err error) bool {
	var be *BudgetError
	return errors.As(err, &be)
}

// BackendError wraps transport and HTTP-level failures from either backend.
type BackendError struct {
	Backend string
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// streamReadError distinguishes user cancellation from a genuine transport
// failure mid-stream.
func streamReadError(ctx context.Context, backend string, err error) error {
	if ctx.Err() == context.Canceled {
		return context.Canceled
	}
	return &BackendError{Backend: backend, Err: err}
}

// Remediation turns a stream error into an actionable message for the
// conversation; transient transport detail stays in the logs.
func Remediation(err error) string {
	switch {
	case err == nil:
		return ""
	case IsBudgetError(err):
		var be *BudgetError
		errors.As(err, &be)
		return "Daily usage limit reached: " + be.Reason + ". Use /usage to review or reset your budget."
	case errors.Is(err, ErrNoBackend):
		return "No model backend is available. Start a local Ollama instance (ollama serve) or set an API key with /setkey."
	case errors.Is(err, ErrNoAPIKey):
		return "The hosted backend needs an API key. Set one with /setkey sk-..."
	}

	var be *BackendError
	if errors.As(err, &be) {
		switch {
		case be.Status == 401 || be.Status == 403:
			return "The hosted backend rejected the API key. Check it with /setkey."
		case be.Status == 429:
			return "The model backend is rate limiting requests. Wait a moment and try again."
		case be.Backend == BackendLocal:
			return "Local backend unreachable — check that Ollama is running (ollama serve)."
		default:
			return "Hosted backend error: " + be.Err.Error()
		}
	}
	if strings.Contains(err.Error(), "connection refused") {
		return "Model backend unreachable — check that the service is running."
	}
	return "Model request failed: " + err.Error()
}
