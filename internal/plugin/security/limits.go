package security

import (
	"errors"
	"time"
)

// Limits bounds how long and how much plugin code may run.
type Limits struct {
	// InitializeTimeout bounds the initialize(api) entry point.
	InitializeTimeout time.Duration

	// InvokeTimeout bounds a single capability handler invocation.
	InvokeTimeout time.Duration

	// CleanupTimeout bounds the cleanup() hook.
	CleanupTimeout time.Duration

	// CallLimit caps the API calls a plugin may make during one entry
	// point or handler invocation. Zero disables the cap.
	CallLimit int64

	// FetchTimeout bounds a single network:fetch request.
	FetchTimeout time.Duration

	// MaxResponseBytes caps network:fetch response bodies.
	MaxResponseBytes int64

	// MaxFileBytes caps a single fs:write payload.
	MaxFileBytes int64

	// MaxPixels caps the area of a pixel buffer a plugin reads or writes
	// in one call.
	MaxPixels int64
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		InitializeTimeout: 5 * time.Second,
		InvokeTimeout:     2 * time.Second,
		CleanupTimeout:    2 * time.Second,
		CallLimit:         100_000,
		FetchTimeout:      10 * time.Second,
		MaxResponseBytes:  4 * 1024 * 1024, // 4 MB
		MaxFileBytes:      16 * 1024 * 1024,
		MaxPixels:         2048 * 2048,
	}
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	if l.InitializeTimeout <= 0 || l.InvokeTimeout <= 0 || l.CleanupTimeout <= 0 || l.FetchTimeout <= 0 {
		return errors.New("limits: timeouts must be positive")
	}
	if l.CallLimit < 0 {
		return errors.New("limits: call limit must not be negative")
	}
	if l.MaxResponseBytes <= 0 || l.MaxFileBytes <= 0 || l.MaxPixels <= 0 {
		return errors.New("limits: size caps must be positive")
	}
	return nil
}
