package condor

import "context"

// Querier is the boundary to the scheduler's query API.
//
// Implementations return the raw ClassAds matching requirements, restricted
// to the projected attributes. An empty requirements string selects all jobs.
type Querier interface {
	Query(ctx context.Context, requirements string, projection []string) ([]ClassAd, error)
}

// FetchActiveJobs queries the schedd once and returns the jobs keyed by batch
// name.
//
// Ads without a batch name are dropped. When several ads share a batch name
// the last one returned wins.
func FetchActiveJobs(ctx context.Context, q Querier, requirements string) (map[string]Record, error) {
	ads, err := q.Query(ctx, requirements, Projection())
	if err != nil {
		return nil, err
	}

	jobs := make(map[string]Record, len(ads))
	for _, ad := range ads {
		rec, ok := RecordFromClassAd(ad)
		if !ok {
			continue
		}
		jobs[rec.BatchName] = rec
	}
	return jobs, nil
}
