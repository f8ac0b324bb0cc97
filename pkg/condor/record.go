package condor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ClassAd attribute names projected from the schedd.
const (
	AttrBatchName      = "JobBatchName"
	AttrStatus         = "JobStatus"
	AttrClusterID      = "ClusterId"
	AttrRemoteHost     = "RemoteHost"
	AttrLastRemoteHost = "LastRemoteHost"
	AttrHoldReason     = "HoldReason"
)

// Projection returns the attribute list requested on every active-jobs query.
func Projection() []string {
	return []string{
		AttrBatchName,
		AttrStatus,
		AttrClusterID,
		AttrRemoteHost,
		AttrLastRemoteHost,
		AttrHoldReason,
	}
}

// ClassAd is a decoded job ClassAd as returned by `condor_q -json`.
type ClassAd map[string]any

// Record is one scheduler-reported snapshot of a job.
//
// Records are built fresh on every poll and are never mutated afterwards.
type Record struct {
	// BatchName correlates the scheduler job with the tracking id (ujs_job_id).
	BatchName string `json:"batch_name"`

	// Status is the scheduler JobStatus.
	Status JobStatus `json:"status"`

	// HoldReason is set only when the schedd reported one. A held job
	// without a reason is a data-integrity fault.
	HoldReason *string `json:"hold_reason,omitempty"`

	ClusterID      int64  `json:"cluster_id,omitempty"`
	RemoteHost     string `json:"remote_host,omitempty"`
	LastRemoteHost string `json:"last_remote_host,omitempty"`
}

// NotFoundRecord is the record used for a tracked job the schedd did not return.
func NotFoundRecord(batchName string) Record {
	return Record{BatchName: batchName, Status: StatusNotFound}
}

// RecordFromClassAd converts a ClassAd into a Record.
//
// The second return value is false when the ad has no usable batch name;
// such ads cannot be correlated and are skipped by callers.
func RecordFromClassAd(ad ClassAd) (Record, bool) {
	batch, ok := stringAttr(ad, AttrBatchName)
	if !ok || strings.TrimSpace(batch) == "" {
		return Record{}, false
	}

	rec := Record{
		BatchName: batch,
		Status:    StatusNotFound,
	}
	if code, ok := intAttr(ad, AttrStatus); ok {
		rec.Status = ParseJobStatus(code)
	}
	if reason, ok := textAttr(ad, AttrHoldReason); ok {
		rec.HoldReason = &reason
	}
	if id, ok := intAttr(ad, AttrClusterID); ok {
		rec.ClusterID = id
	}
	rec.RemoteHost, _ = stringAttr(ad, AttrRemoteHost)
	rec.LastRemoteHost, _ = stringAttr(ad, AttrLastRemoteHost)
	return rec, true
}

func stringAttr(ad ClassAd, key string) (string, bool) {
	v, ok := ad[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// textAttr renders any non-nil attribute as text.
func textAttr(ad ClassAd, key string) (string, bool) {
	v, ok := ad[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func intAttr(ad ClassAd, key string) (int64, bool) {
	v, ok := ad[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
