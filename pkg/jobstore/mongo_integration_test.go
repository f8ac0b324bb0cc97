//go:build mongointegration

package jobstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// Requires a reachable MongoDB. Run with:
//
//	JOBWATCH_TEST_MONGO_HOST=localhost go test -tags mongointegration ./pkg/jobstore/...
func TestMongoStore_Integration(t *testing.T) {
	host := os.Getenv("JOBWATCH_TEST_MONGO_HOST")
	if host == "" {
		t.Skip("JOBWATCH_TEST_MONGO_HOST not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := MongoConfig{
		Host:       host,
		Database:   "jobwatch_it",
		Collection: "jobstate_" + time.Now().UTC().Format("20060102150405"),
	}
	s, err := NewMongoStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() {
		_ = s.coll.Drop(ctx)
		_ = s.Close(ctx)
	}()
	require.NoError(t, s.Ping(ctx))

	_, err = s.coll.InsertMany(ctx, []any{
		bson.M{FieldJobID: "job-1", FieldComplete: false, FieldStatus: "running"},
		bson.M{FieldJobID: "job-2", FieldComplete: true, FieldStatus: "done"},
	})
	require.NoError(t, err)

	docs, err := s.GetJobs(ctx, []string{"job-1", "job-2", "job-3"}, []string{FieldComplete})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.True(t, docs["job-2"].Complete())
	_, hasStatus := docs["job-1"][FieldStatus]
	assert.False(t, hasStatus)

	doc, err := s.GetJob(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "running", doc.Status())

	_, err = s.GetJob(ctx, "job-3", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
