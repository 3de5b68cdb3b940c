package authgate

import "errors"

var (
	// ErrDeviceTokenRequired is an exported constant or variable used by the authentication engine.
	ErrDeviceTokenRequired = errors.New("device token required")
	// ErrDeviceTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrDeviceTokenInvalid = errors.New("invalid device token")
	// ErrDeviceTokenExpired is an exported constant or variable used by the authentication engine.
	ErrDeviceTokenExpired = errors.New("expired device token")
	// ErrSessionTokenRequired is an exported constant or variable used by the authentication engine.
	ErrSessionTokenRequired = errors.New("session token required")
	// ErrSessionTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrSessionTokenInvalid = errors.New("invalid session token")
	// ErrSessionTokenExpired is an exported constant or variable used by the authentication engine.
	ErrSessionTokenExpired = errors.New("expired session token")
	// ErrInvalidScope is an exported constant or variable used by the authentication engine.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrGoogleCodeRequired is an exported constant or variable used by the authentication engine.
	ErrGoogleCodeRequired = errors.New("google token required for enabled factor")
	// ErrEmailCodeRequired is an exported constant or variable used by the authentication engine.
	ErrEmailCodeRequired = errors.New("email code required for enabled factor")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("storage backend unavailable")
	// ErrSmsUnavailable is an exported constant or variable used by the authentication engine.
	ErrSmsUnavailable = errors.New("sms backend unavailable")
	// ErrMailUnavailable is an exported constant or variable used by the authentication engine.
	ErrMailUnavailable = errors.New("mail backend unavailable")
	// ErrPublishFailed is an exported constant or variable used by the authentication engine.
	ErrPublishFailed = errors.New("identity event publish failed")
	// ErrIdentityConflict is an exported constant or variable used by the authentication engine.
	ErrIdentityConflict = errors.New("identity resolution conflict not settled within retry budget")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
