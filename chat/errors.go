package chat

import (
	"errors"
	"fmt"
)

// ErrTransportUnavailable reports that a publish could not be dispatched
// over the live socket. It stays internal: the session reacts by using the
// request/response fallback.
var ErrTransportUnavailable = errors.New("transport unavailable")

// SendError is handed to OnSendFailed when both the transport publish and
// the request/response fallback failed. Text carries the original input so
// the UI can put it back in the compose box.
type SendError struct {
	Text string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
