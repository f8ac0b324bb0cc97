package condor

// Outcome is the semantic classification of a job record used by the
// downstream reconciliation process.
type Outcome string

const (
	// OutcomeProgressing covers unexpanded, idle and running jobs.
	OutcomeProgressing Outcome = "progressing"

	// OutcomeHeldTransient is a held job whose reason the hold policy
	// expects to clear.
	OutcomeHeldTransient Outcome = "held_transient"

	// OutcomeHeld is a held job that is not expected to resume.
	OutcomeHeld Outcome = "held"

	// OutcomeTerminal covers removed, completed and submission-error jobs.
	OutcomeTerminal Outcome = "terminal"

	// OutcomeMissing is a job the schedd did not report.
	OutcomeMissing Outcome = "missing"
)

// WillComplete reports whether a job with this outcome may still complete.
func (o Outcome) WillComplete() bool {
	return o == OutcomeProgressing || o == OutcomeHeldTransient
}

// HoldPolicy decides whether a hold with the given reason is expected to clear.
type HoldPolicy interface {
	Resumes(reason string) bool
}

// HoldPolicyFunc adapts a function to HoldPolicy.
type HoldPolicyFunc func(reason string) bool

// Resumes implements HoldPolicy.
func (f HoldPolicyFunc) Resumes(reason string) bool {
	return f(reason)
}

// NeverResumes treats every hold as permanent.
var NeverResumes HoldPolicy = HoldPolicyFunc(func(string) bool { return false })

// Classifier maps scheduler records to outcomes.
//
// A Classifier has no mutable state and is safe for concurrent use.
type Classifier struct {
	holds HoldPolicy
}

// NewClassifier returns a classifier using the given hold policy.
// A nil policy means NeverResumes.
func NewClassifier(holds HoldPolicy) *Classifier {
	if holds == nil {
		holds = NeverResumes
	}
	return &Classifier{holds: holds}
}

var defaultClassifier = NewClassifier(nil)

// Classify maps a record to an outcome.
//
// A held record without a hold reason yields a *DataIntegrityError and no
// outcome.
func (c *Classifier) Classify(rec Record) (Outcome, error) {
	switch rec.Status {
	case StatusUnexpanded, StatusIdle, StatusRunning:
		return OutcomeProgressing, nil
	case StatusRemoved, StatusCompleted, StatusSubmissionErr:
		return OutcomeTerminal, nil
	case StatusHeld:
		if rec.HoldReason == nil {
			return "", &DataIntegrityError{BatchName: rec.BatchName, Status: rec.Status}
		}
		if c.policy().Resumes(*rec.HoldReason) {
			return OutcomeHeldTransient, nil
		}
		return OutcomeHeld, nil
	default:
		return OutcomeMissing, nil
	}
}

// WillComplete reports whether the job described by rec may still complete.
func (c *Classifier) WillComplete(rec Record) (bool, error) {
	outcome, err := c.Classify(rec)
	if err != nil {
		return false, err
	}
	return outcome.WillComplete(), nil
}

func (c *Classifier) policy() HoldPolicy {
	if c == nil || c.holds == nil {
		return NeverResumes
	}
	return c.holds
}

// Classify classifies rec with the default classifier (holds never resume).
func Classify(rec Record) (Outcome, error) {
	return defaultClassifier.Classify(rec)
}

// WillComplete classifies rec with the default classifier (holds never resume).
func WillComplete(rec Record) (bool, error) {
	return defaultClassifier.WillComplete(rec)
}
