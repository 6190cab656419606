package resolver

import (
	"github.com/salt-formulas/shaker/pkg/constraint"
)

// MergeConstraints combines two constraint strings discovered for the same
// formula via different paths through the graph. Precedence:
//
//   - an empty constraint always loses to a non-empty one
//   - a "==" pin held by current wins unconditionally (first pin is sticky)
//   - otherwise a "==" pin from next wins
//   - two ">=" keep the greater bound, two "<=" keep the lesser
//   - a ">="/"<=" mix is contradictory and fails rather than being
//     reconciled
func MergeConstraints(next, current string) (string, error) {
	switch {
	case next == "" && current == "":
		return "", nil
	case next == "":
		return current, nil
	case current == "":
		return next, nil
	}

	nc := constraint.Parse(next)
	cc := constraint.Parse(current)
	if nc.Empty() {
		return "", &FormatError{Constraint: next}
	}
	if cc.Empty() {
		return "", &FormatError{Constraint: current}
	}

	switch {
	case cc.Comparator == "==":
		return current, nil
	case nc.Comparator == "==":
		return next, nil
	case nc.Comparator != cc.Comparator:
		return "", resolutionErrorf("", "", "contradictory constraints %q and %q", next, current)
	case nc.Comparator == ">=":
		if constraint.CompareVersions(nc.Tag, cc.Tag) >= 0 {
			return ">=" + nc.Tag, nil
		}
		return ">=" + cc.Tag, nil
	case nc.Comparator == "<=":
		if constraint.CompareVersions(nc.Tag, cc.Tag) <= 0 {
			return "<=" + nc.Tag, nil
		}
		return "<=" + cc.Tag, nil
	default:
		return "", &FormatError{Constraint: next}
	}
}
