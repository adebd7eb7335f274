package constants

import "errors"

// Configuration errors.
var (
	ErrNoCredentialConfigured = errors.New("no credential configured, use 'cloudcore login' first")
	ErrNoSecretProvided       = errors.New("a password or --api-key is required")
	ErrConfigKeyUnknown       = errors.New("unknown configuration key")
)

// Command errors.
var (
	ErrInvalidHeader      = errors.New("headers must be given as key=value")
	ErrInvalidOutput      = errors.New("unsupported output format")
	ErrServiceTypeMissing = errors.New("--type is required")
	ErrInvalidJSONBody    = errors.New("body is not valid JSON")
)

// File system errors.
var (
	ErrNotRegularFile             = errors.New("path is not a regular file")
	ErrDirectoryTraversalDetected = errors.New("directory traversal detected in file path")
)
