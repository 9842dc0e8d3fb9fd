package workflow

import "errors"

// SignalKind tags the non-local exits a step may request.
type SignalKind int

const (
	SignalSkipStep SignalKind = iota + 1
	SignalFailStep
	SignalSkipWorkflow
	SignalFailWorkflow
	SignalContinue
	SignalBreak
)

func (k SignalKind) String() string {
	switch k {
	case SignalSkipStep:
		return "skip-step"
	case SignalFailStep:
		return "fail-step"
	case SignalSkipWorkflow:
		return "skip-workflow"
	case SignalFailWorkflow:
		return "fail-workflow"
	case SignalContinue:
		return "continue"
	case SignalBreak:
		return "break"
	default:
		return "unknown"
	}
}

// Signal is returned by a step to skip or fail itself, the enclosing loop
// iteration or the whole run. The reason is reported verbatim in the log.
type Signal struct {
	Kind   SignalKind
	Reason string
}

func (s *Signal) Error() string { return s.Reason }

// AsSignal extracts a *Signal from err's chain.
func AsSignal(err error) (*Signal, bool) {
	var sig *Signal
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}

// IsSignal reports whether err carries a signal of the given kind.
func IsSignal(err error, kind SignalKind) bool {
	sig, ok := AsSignal(err)
	return ok && sig.Kind == kind
}

func newSignal(kind SignalKind, reason string) *Signal {
	return &Signal{Kind: kind, Reason: reason}
}
