package core

import "errors"

var (
	// ErrDecode marks a payload that could not be turned into an image.
	ErrDecode = errors.New("decode error")
	// ErrNotFound marks a named resource that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamDegraded marks a collaborator failure that callers absorb.
	ErrUpstreamDegraded = errors.New("upstream degraded")
	// ErrInternal marks any failure that was not anticipated.
	ErrInternal = errors.New("internal error")
	// ErrDetectorUnavailable indicates the detector was never initialized.
	ErrDetectorUnavailable = errors.New("detector not initialized")
)
