package reconcile

import (
	"context"
	"sort"

	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/output"
)

// JobRecord describes one scheduler record with its classification.
// Integrity faults are reported in the Error field rather than failing.
func JobRecord(c *condor.Classifier, rec condor.Record) *output.JobRecord {
	out := &output.JobRecord{
		BatchName:      rec.BatchName,
		ClusterID:      rec.ClusterID,
		Status:         int(rec.Status),
		StatusName:     rec.Status.String(),
		HoldReason:     rec.HoldReason,
		RemoteHost:     rec.RemoteHost,
		LastRemoteHost: rec.LastRemoteHost,
	}
	outcome, err := c.Classify(rec)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Outcome = string(outcome)
	out.WillComplete = output.Bool(outcome.WillComplete())
	return out
}

// ActiveJobs polls the scheduler once and describes every job, sorted by
// batch name.
func ActiveJobs(ctx context.Context, q condor.Querier, c *condor.Classifier, constraint string) ([]*output.JobRecord, error) {
	jobs, err := condor.FetchActiveJobs(ctx, q, constraint)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*output.JobRecord, 0, len(names))
	for _, name := range names {
		out = append(out, JobRecord(c, jobs[name]))
	}
	return out, nil
}
