// Package core defines monico's domain model: monitors, tasks, probes,
// the storage contract they are persisted through, and the closed error
// taxonomy every component in the system raises.
package core

import "fmt"

// MonitorAttributeError is raised by the domain constructors when a
// monitor field fails validation, before any storage call is made.
type MonitorAttributeError struct {
	Message string
}

func (e *MonitorAttributeError) Error() string {
	return e.Message
}

func newAttributeError(format string, args ...interface{}) error {
	return &MonitorAttributeError{Message: fmt.Sprintf(format, args...)}
}

// MonitorAlreadyExistsError is raised when CreateMonitor collides with
// an existing monitor ID.
type MonitorAlreadyExistsError struct {
	ID string
}

func (e *MonitorAlreadyExistsError) Error() string {
	return fmt.Sprintf("monitor with ID %q already exists", e.ID)
}

// MonitorNotFoundError is raised when ReadMonitor or DeleteMonitor is
// given an unknown ID.
type MonitorNotFoundError struct {
	ID string
}

func (e *MonitorNotFoundError) Error() string {
	return fmt.Sprintf("monitor with ID %q not found", e.ID)
}

// StorageConnectionError wraps a transport failure while establishing
// or probing the backing database connection.
type StorageConnectionError struct {
	Err error
}

func (e *StorageConnectionError) Error() string {
	return fmt.Sprintf("could not connect to storage backend: %v", e.Err)
}

func (e *StorageConnectionError) Unwrap() error {
	return e.Err
}

// StorageSetupError is raised when Setup is re-run without force on an
// already-initialized store, or when schema DDL otherwise fails.
type StorageSetupError struct {
	Message string
	Err     error
}

func (e *StorageSetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StorageSetupError) Unwrap() error {
	return e.Err
}

// ConfigurationError is raised when the adapter-supplied configuration
// is invalid or self-contradictory (e.g. both POSTGRES_URI and
// SQLITE_URI set).
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// NewConfigurationError builds a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}
