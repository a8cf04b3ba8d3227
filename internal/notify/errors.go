package notify

import "errors"

// ErrSendFailed wraps a delivery failure on any channel. Delivery failures
// are logged by callers, never returned up through a pipeline's terminal
// notify step — a failed notification must not fail the run it reports on.
var ErrSendFailed = errors.New("notify: send failed")
