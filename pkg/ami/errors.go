package ami

import "errors"

var (
	// ErrConnectFailed indicates the TCP session to the manager interface
	// could not be established.
	ErrConnectFailed = errors.New("failed to connect to AMI")
	// ErrAuthFailed indicates the Login action was rejected.
	ErrAuthFailed = errors.New("AMI authentication failed")
	// ErrDisconnected indicates the session dropped mid-exchange. The next
	// call will attempt a fresh connection.
	ErrDisconnected = errors.New("AMI connection lost")
	// ErrTimeout indicates no response arrived in time. The PBX may still
	// have acted on the command; callers must treat the outcome as unknown.
	ErrTimeout = errors.New("AMI command timed out")
	// ErrActionFailed indicates the PBX answered with Response: Error.
	ErrActionFailed = errors.New("AMI action failed")

	errHostRequired     = errors.New("ami host is required")
	errUsernameRequired = errors.New("ami username is required")
	errPasswordRequired = errors.New("ami password is required")
	errUnexpectedBanner = errors.New("unexpected AMI banner")
)
