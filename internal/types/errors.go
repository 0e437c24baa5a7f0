package types

import "errors"

var (
	// ErrSignalUnavailable is a transient read failure; the caller keeps polling.
	ErrSignalUnavailable = errors.New("signal source unavailable")

	// ErrSourceClosed means the signal source will never produce again.
	ErrSourceClosed = errors.New("signal source closed")

	// ErrOrderRejected covers gateway rejections, zero quantities and missing order ids.
	ErrOrderRejected = errors.New("order rejected")

	// ErrPersistenceFailure means the trade lock could not be read or written durably.
	ErrPersistenceFailure = errors.New("trade lock persistence failure")

	// ErrFeedDisconnected means the push feed dropped; polling continues alone.
	ErrFeedDisconnected = errors.New("market feed disconnected")

	ErrInvalidTransition = errors.New("invalid state transition")
)
