package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsRecordProcessTimeBuckets(t *testing.T) {
	s := NewStats()
	s.RecordProcessTime(50 * time.Millisecond)
	s.RecordProcessTime(2 * time.Second)

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.ProcessTime["<0.1s"])
	assert.Equal(t, int64(1), snap.ProcessTime["<5s"])
}

func TestStatsRecordDispatchBucketsWaitAndTallysRoute(t *testing.T) {
	s := NewStats()
	s.RecordDispatch("/wb/search", 10*time.Millisecond)
	s.RecordDispatch("/wb/search", 40*time.Second)

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.WorkerWait["<0.1s"])
	assert.Equal(t, int64(1), snap.WorkerWait[">=30s"])
	assert.Equal(t, int64(2), snap.TaskType["/wb/search"])
}

func TestStatsRecordResponseTalliesStatusAndSize(t *testing.T) {
	s := NewStats()
	s.RecordResponse(200, 512)
	s.RecordResponse(200, 2<<20)
	s.RecordResponse(500, -1)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.StatusCode["200"])
	assert.Equal(t, int64(1), snap.StatusCode["500"])
	// 512 bytes and the clamped -1 (treated as 0) both land in "<1KB".
	assert.Equal(t, int64(2), snap.PayloadSize["<1KB"])
	assert.Equal(t, int64(1), snap.PayloadSize["<10MB"])
}

func TestStatsSnapshotIsIndependentCopy(t *testing.T) {
	s := NewStats()
	s.RecordResponse(200, 10)
	snap := s.Snapshot()
	s.RecordResponse(200, 10)

	assert.Equal(t, int64(1), snap.StatusCode["200"])
	assert.Equal(t, int64(2), s.Snapshot().StatusCode["200"])
}
