package resolver

import "fmt"

// ResolutionError reports a constraint that is syntactically valid but cannot
// be satisfied against the remote's tags and branches, or a pair of
// constraints that contradict each other. It aborts the whole graph
// resolution: a partial dependency set is not safe to materialize.
type ResolutionError struct {
	Key        string
	Constraint string
	Reason     string
}

func (e *ResolutionError) Error() string {
	msg := "resolve"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" %q", e.Constraint)
	}
	return msg + ": " + e.Reason
}

func resolutionErrorf(key, constraint, format string, args ...any) *ResolutionError {
	return &ResolutionError{
		Key:        key,
		Constraint: constraint,
		Reason:     fmt.Sprintf(format, args...),
	}
}

// FormatError reports a constraint string that matches no recognized shape.
type FormatError struct {
	Constraint string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("constraint %q has no recognized form", e.Constraint)
}
