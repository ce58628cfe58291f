package manager

import (
	"strconv"
	"sync"
	"time"
)

// Stats is the process-wide counter set behind /router/stats/service and
// /router/stats/http, grounded on the original's Manager._worker_waiting_time
// and Manager._task_type Counters plus api.py's get_service_stats/get_http_stats
// process-time, status-code, and payload-size histograms. Every counter is a
// bucket label -> count map guarded by one mutex; buckets, not raw samples,
// are kept so the maps stay bounded regardless of traffic volume.
type Stats struct {
	mu sync.Mutex

	processTime map[string]int64
	workerWait  map[string]int64
	taskType    map[string]int64
	statusCode  map[string]int64
	payloadSize map[string]int64
}

// NewStats constructs an empty Stats.
func NewStats() *Stats {
	return &Stats{
		processTime: make(map[string]int64),
		workerWait:  make(map[string]int64),
		taskType:    make(map[string]int64),
		statusCode:  make(map[string]int64),
		payloadSize: make(map[string]int64),
	}
}

// durationBuckets are the boundaries (seconds, upper-exclusive except the
// last) used for both the process-time and worker-wait histograms.
var durationBuckets = []struct {
	label string
	upper float64
}{
	{"<0.1s", 0.1},
	{"<0.5s", 0.5},
	{"<1s", 1},
	{"<5s", 5},
	{"<30s", 30},
	{">=30s", -1},
}

func bucketDuration(d time.Duration) string {
	secs := d.Seconds()
	for _, b := range durationBuckets {
		if b.upper < 0 || secs < b.upper {
			return b.label
		}
	}
	return durationBuckets[len(durationBuckets)-1].label
}

// sizeBuckets are the payload-size histogram boundaries, in bytes.
var sizeBuckets = []struct {
	label string
	upper int64
}{
	{"<1KB", 1 << 10},
	{"<10KB", 10 << 10},
	{"<100KB", 100 << 10},
	{"<1MB", 1 << 20},
	{"<10MB", 10 << 20},
	{">=10MB", -1},
}

func bucketSize(n int) string {
	sz := int64(n)
	for _, b := range sizeBuckets {
		if b.upper < 0 || sz < b.upper {
			return b.label
		}
	}
	return sizeBuckets[len(sizeBuckets)-1].label
}

// RecordProcessTime buckets one request's end-to-end handling time.
func (s *Stats) RecordProcessTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processTime[bucketDuration(d)]++
}

// RecordDispatch buckets the time a task waited between being scheduled
// and a Worker picking it up (manager._worker_waiting_time in the
// ground-truth original), and tallies the route it dispatched to
// (manager._task_type). It satisfies worker.DispatchRecorder.
func (s *Stats) RecordDispatch(route string, waited time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workerWait[bucketDuration(waited)]++
	s.taskType[route]++
}

// RecordResponse tallies a proxied response's status code and body size.
// A negative size (gin reports -1 before any body bytes are written, e.g.
// a bare 204) is treated as zero.
func (s *Stats) RecordResponse(status, size int) {
	if size < 0 {
		size = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCode[strconv.Itoa(status)]++
	s.payloadSize[bucketSize(size)]++
}

// Snapshot is a point-in-time copy of every histogram, safe to serialize
// without holding Stats' lock.
type Snapshot struct {
	ProcessTime map[string]int64 `json:"process_time"`
	WorkerWait  map[string]int64 `json:"worker_wait"`
	TaskType    map[string]int64 `json:"task_type"`
	StatusCode  map[string]int64 `json:"status_code"`
	PayloadSize map[string]int64 `json:"payload_size"`
}

func cloneCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot copies every histogram for serialization.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ProcessTime: cloneCounts(s.processTime),
		WorkerWait:  cloneCounts(s.workerWait),
		TaskType:    cloneCounts(s.taskType),
		StatusCode:  cloneCounts(s.statusCode),
		PayloadSize: cloneCounts(s.payloadSize),
	}
}

