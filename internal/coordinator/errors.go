package coordinator

import "errors"

var (
	ErrDeviceOffline = errors.New("target device is not connected")
	ErrNoDevice      = errors.New("no device location for requester")
	ErrHardware      = errors.New("device reported an error")
	ErrNotEligible   = errors.New("request not eligible")
)

// Failure is an error the requester is told about. Message is shown to the
// user as is; Err keeps the cause for the logs.
type Failure struct {
	Message string
	Err     error
}

func fail(message string, err error) *Failure {
	return &Failure{Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }
