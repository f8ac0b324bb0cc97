// Package jobstore reads job-tracking documents keyed by ujs_job_id.
//
// Two backends are provided: MongoStore for the deployed job database and
// SQLiteStore for local snapshots and tests. Both are selected through Open.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Well-known document fields.
const (
	FieldJobID    = "ujs_job_id"
	FieldComplete = "complete"
	FieldError    = "error"
	FieldStatus   = "status"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no document exists for the requested id.
	ErrNotFound = errors.New("job document not found")

	// ErrInvalidConfig indicates the store configuration is unusable.
	ErrInvalidConfig = errors.New("invalid job store config")

	// ErrStoreUnavailable indicates the backend could not be reached.
	ErrStoreUnavailable = errors.New("job store unavailable")
)

// Store is the boundary to the job document database.
type Store interface {
	// GetJobs returns the documents whose ujs_job_id is in ids, keyed by id.
	// Ids without a document are absent from the result. A nil or empty
	// projection returns whole documents; ujs_job_id is always included.
	GetJobs(ctx context.Context, ids []string, projection []string) (map[string]Document, error)

	// GetJob returns a single document or ErrNotFound.
	GetJob(ctx context.Context, id string, projection []string) (Document, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Document is a job document as stored by the tracking service.
type Document map[string]any

// ID returns the ujs_job_id field.
func (d Document) ID() string {
	s, _ := d[FieldJobID].(string)
	return s
}

// Complete reports the document's complete flag.
func (d Document) Complete() bool {
	b, _ := d[FieldComplete].(bool)
	return b
}

// Errored reports the document's error flag.
func (d Document) Errored() bool {
	b, _ := d[FieldError].(bool)
	return b
}

// Status returns the free-text status line.
func (d Document) Status() string {
	s, _ := d[FieldStatus].(string)
	return s
}

// Project returns a copy of d restricted to fields (plus ujs_job_id).
// With no fields it returns d unchanged.
func (d Document) Project(fields []string) Document {
	if len(fields) == 0 {
		return d
	}
	out := make(Document, len(fields)+1)
	if v, ok := d[FieldJobID]; ok {
		out[FieldJobID] = v
	}
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Driver names accepted by Open.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// NormalizeIDs trims ids, drops empties and duplicates, preserving order.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s is required", FieldJobID)
	}
	return id, nil
}
