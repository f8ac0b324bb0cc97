package condor

import (
	"fmt"
	"regexp"
	"strings"
)

// Constraints used by the portal when polling the schedd.
const (
	// ConstraintIdleOrRunningOrHeld selects every job that has not left the queue.
	ConstraintIdleOrRunningOrHeld = "JobStatus == 0 || JobStatus == 1 || JobStatus == 2 || JobStatus == 5"

	// ConstraintIdleAndRunning selects jobs that are queued or executing.
	ConstraintIdleAndRunning = "JobStatus == 1 || JobStatus == 2"
)

var unsafeConstraintChars = regexp.MustCompile(`[^0-9A-Za-z=_]`)

// CleanInput strips everything but letters, digits, '=' and '_' from a value
// that will be interpolated into a constraint expression.
func CleanInput(s string) string {
	return unsafeConstraintChars.ReplaceAllString(s, "")
}

// StatusConstraint builds a disjunction over the given statuses.
// With no statuses it returns an empty constraint (all jobs).
func StatusConstraint(statuses ...JobStatus) string {
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%s == %d", AttrStatus, int(s)))
	}
	return strings.Join(parts, " || ")
}

// BatchNameConstraint selects the jobs submitted for one tracking id.
func BatchNameConstraint(batchName string) string {
	return fmt.Sprintf("%s == %q", AttrBatchName, CleanInput(batchName))
}

// And joins non-empty constraints with &&, parenthesizing each term.
func And(constraints ...string) string {
	parts := make([]string, 0, len(constraints))
	for _, c := range constraints {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		parts = append(parts, "("+c+")")
	}
	return strings.Join(parts, " && ")
}
