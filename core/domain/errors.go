package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMockError     = errors.New("mock error")
	ErrPlanNotBuilt  = errors.New("plan was not produced by the plan builder")
	ErrTransient     = errors.New("transient error")
	ErrProbeTimedOut = errors.New("probe timed out")
	ErrCancelled     = errors.New("cancelled")
)

// ConfigurationError is returned for missing, unreadable or invalid configuration.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned when a registry or scan target session cannot be established.
type AuthenticationError struct {
	Target string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authenticate %s: %v", e.Target, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

type ProbeError struct {
	Target string
	Kind   SourceKind
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe on %s: %v", e.Kind, e.Target, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// CatalogError is returned when the registry contents cannot be listed. It is always fatal.
type CatalogError struct {
	Registry string
	Err      error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("list catalog of %s: %v", e.Registry, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

type DeletionBatchError struct {
	Repository string
	Images     int
	Err        error
}

func (e *DeletionBatchError) Error() string {
	return fmt.Sprintf("delete %d images from %s: %v", e.Images, e.Repository, e.Err)
}

func (e *DeletionBatchError) Unwrap() error {
	return e.Err
}

type NotificationError struct {
	Notifier string
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Notifier, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
