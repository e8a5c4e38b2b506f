package review

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/sage/pkg/models"
)

// AutoResolvable reports whether a conflict may be settled without a reviewer: a
// missing side is always filled in, low severity is always safe, and a partial match
// is safe unless the field is identity-critical.
func AutoResolvable(c models.FieldConflict) bool {
	switch {
	case c.ConflictType == models.ConflictTypeLocalMissing, c.ConflictType == models.ConflictTypeExternalMissing:
		return true
	case c.Severity == models.SeverityLow:
		return true
	case c.ConflictType == models.ConflictTypePartialMatch:
		return c.Severity != models.SeverityHigh
	default:
		return false
	}
}

// AutoResolve picks the value an auto-resolvable conflict settles on and the status
// recording which side won. Local data wins unless it is missing or is the shorter half
// of a partial match.
func AutoResolve(c models.FieldConflict) (any, models.ResolutionStatus) {
	switch c.ConflictType {
	case models.ConflictTypeLocalMissing:
		return c.ExternalValue, models.ResolutionResolvedExternal
	case models.ConflictTypeExternalMissing:
		return c.LocalValue, models.ResolutionResolvedLocal
	case models.ConflictTypePartialMatch:
		if len(text(c.ExternalValue)) > len(text(c.LocalValue)) {
			return c.ExternalValue, models.ResolutionResolvedExternal
		}
		return c.LocalValue, models.ResolutionResolvedLocal
	default:
		return c.LocalValue, models.ResolutionResolvedLocal
	}
}

// approvedValue is what a reviewer's approval applies when no override is given.
func approvedValue(c models.FieldConflict) any {
	if isNull(c.LocalValue) {
		return c.ExternalValue
	}
	return c.LocalValue
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
