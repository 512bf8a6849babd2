package proximity

import "errors"

var (
	// ErrPermissionDenied means foreground location access was not granted
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable means the provider could not produce a fix (timeout, sensors off)
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrSubscribeFailed means the provider refused to open a subscription
	ErrSubscribeFailed = errors.New("location subscription failed")
)
