package engine

import (
	"errors"
	"fmt"
)

var (
	ErrModelNotFound      = errors.New("model not found")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrUnknownBackend     = errors.New("unknown backend")
	// ErrNonStandard marks failures that did not surface as a regular error,
	// such as a panic inside a backend.
	ErrNonStandard = errors.New("non-standard failure")
	ErrClosed      = errors.New("engine closed")
)

// LoadError reports why an engine could not be created.
type LoadError struct {
	Backend string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	msg := "load " + e.Backend + " engine"
	if e.Path != "" {
		msg += " from " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadErr(backend, path string, err error) error {
	return &LoadError{Backend: backend, Path: path, Err: err}
}

func recoverNonStandard(op string, err *error) {
	if rec := recover(); rec != nil {
		*err = fmt.Errorf("%w: panic in %s: %v", ErrNonStandard, op, rec)
	}
}
