package unifi

import "errors"

// Domain errors for the UniFi bridge package.
var (
	// ErrLoginFailed is returned when the controller rejects or cannot
	// process the login.
	ErrLoginFailed = errors.New("unifi: login failed")

	// ErrRequestFailed is returned when a controller request cannot be
	// completed (transport error or non-2xx status).
	ErrRequestFailed = errors.New("unifi: request failed")

	// ErrControllerResponse is returned when the controller answers with an
	// error envelope or a body that is not valid JSON.
	ErrControllerResponse = errors.New("unifi: controller returned an error")

	// ErrCycleInProgress is returned by RunCycle when another cycle is running.
	ErrCycleInProgress = errors.New("unifi: poll cycle already in progress")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("unifi: bridge already started")

	// ErrBridgeStopped is returned when triggering a stopped bridge.
	ErrBridgeStopped = errors.New("unifi: bridge stopped")

	// ErrFixtureNotFound is returned when a fixture directory lacks the
	// site list.
	ErrFixtureNotFound = errors.New("unifi: fixture not found")
)
