package domain

import (
	"errors"
	"strings"
)

// Operator annotations form a separate, narrower state machine layered over
// a run's history:
//
//   - RESOLVED is reachable only from FAILED.
//   - DEPRECATED is reachable from anything except FAILED, ABORTED, RESOLVED
//     and DEPRECATED; with no history at all it is the only legal annotation.
//
// Every annotation requires a non-empty comment.

var deprecatedExcluded = map[string]bool{
	StatusFailed:     true,
	StatusAborted:    true,
	StatusResolved:   true,
	StatusDeprecated: true,
}

// AllowedAnnotations returns the legal annotation statuses given the current
// status. Pass "" when the run has no state history.
func AllowedAnnotations(current string) []string {
	if current == "" {
		return []string{StatusDeprecated}
	}
	cur := NormalizeStatus(current)
	var allowed []string
	if cur == StatusFailed {
		allowed = append(allowed, StatusResolved)
	}
	if !deprecatedExcluded[cur] {
		allowed = append(allowed, StatusDeprecated)
	}
	return allowed
}

// ValidateAnnotation checks an operator-issued annotation against the
// current status before anything is persisted.
func ValidateAnnotation(current, requested, comment string) error {
	req := NormalizeStatus(requested)
	if req != StatusResolved && req != StatusDeprecated {
		return errors.New("annotation status must be RESOLVED or DEPRECATED")
	}
	if strings.TrimSpace(comment) == "" {
		return errors.New("comment is required")
	}
	for _, allowed := range AllowedAnnotations(current) {
		if allowed == req {
			return nil
		}
	}
	if current == "" {
		return errors.New("only DEPRECATED is allowed when the run has no states")
	}
	return errors.New("annotation " + req + " is not reachable from " + NormalizeStatus(current))
}
