package checkout

import "errors"

// Status is the checkout flow state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLoading    Status = "loading"
	StatusError      Status = "error"
	StatusNotFound   Status = "not_found"
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusRedirected Status = "redirected"
	StatusFailed     Status = "failed"
)

// ErrIllegalTransition is returned when an operation is invoked from a state
// that does not allow it.
var ErrIllegalTransition = errors.New("illegal checkout transition")

var transitions = map[Status][]Status{
	StatusIdle:       {StatusLoading},
	StatusLoading:    {StatusError, StatusNotFound, StatusReady, StatusLoading},
	StatusError:      {StatusLoading},
	StatusNotFound:   {StatusLoading},
	StatusReady:      {StatusProcessing, StatusLoading},
	StatusProcessing: {StatusRedirected, StatusFailed},
	StatusFailed:     {StatusProcessing, StatusLoading},
	StatusRedirected: {StatusLoading},
}

// CanTransitionTo reports whether from → to is allowed.
func CanTransitionTo(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalScreen reports states that render a full-screen message with a
// single recovery action.
func (s Status) IsTerminalScreen() bool {
	return s == StatusError || s == StatusNotFound
}

func (s Status) String() string { return string(s) }
