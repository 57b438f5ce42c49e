// Package errs defines common error variables used across the application.
package errs

import "errors"

var (
	// ErrServiceClosed indicates that the orchestrator is shut down and cannot accept new jobs.
	ErrServiceClosed = errors.New("service is closed")
)

// Request validation errors.
var (
	// ErrInvalidURL indicates that the URL field in the request is invalid.
	ErrInvalidURL = errors.New("invalid url field")
	// ErrInvalidFilter indicates an unknown download filter value.
	ErrInvalidFilter = errors.New("invalid filter field")
	// ErrInvalidMaxConcurrent indicates a concurrency ceiling below one.
	ErrInvalidMaxConcurrent = errors.New("max concurrent must be at least 1")
)

// Download errors.
var (
	// ErrDownloadNotFound indicates that no download with the given id exists.
	ErrDownloadNotFound = errors.New("download not found")
	// ErrNotRetryable indicates that the download is not in a failed state, so it cannot be retried.
	ErrNotRetryable = errors.New("download not found or not failed")
	// ErrFetchInfo indicates that video metadata could not be resolved for the URL.
	ErrFetchInfo = errors.New("fetch video info failed")
)

// Dependency manager errors.
var (
	// ErrBinaryNotFound indicates that a required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)
