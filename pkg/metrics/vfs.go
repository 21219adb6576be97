package metrics

import "time"

// VFSMetrics provides observability for the virtual filesystem layer.
//
// A nil VFSMetrics is never passed around: callers that do not collect
// metrics use NewNoopVFSMetrics.
type VFSMetrics interface {
	// RecordLookup records one resource cache lookup.
	//
	// Parameters:
	//   - property: the stat property requested ("type", "size", "etag", ...)
	//   - hit: true when the resource was served from cache
	RecordLookup(property string, hit bool)

	// ObserveFanOut records one resolver fan-out for a system object.
	ObserveFanOut(duration time.Duration, err error)

	// ObserveLockWait records how long a writer waited for a per-object
	// lock and whether it got it ("acquired" or "timeout").
	ObserveLockWait(outcome string, wait time.Duration)

	// RecordIngestionStart increments the in-flight ingestion gauge.
	RecordIngestionStart()

	// RecordIngestionEnd decrements the in-flight ingestion gauge and
	// records the outcome of one completed upload.
	//
	// Parameters:
	//   - bytes: upload size
	//   - duration: time from close to commit, lock wait included
	//   - err: nil on success
	RecordIngestionEnd(bytes int64, duration time.Duration, err error)
}

// NewNoopVFSMetrics returns a VFSMetrics that records nothing.
func NewNoopVFSMetrics() VFSMetrics {
	return noopVFSMetrics{}
}

type noopVFSMetrics struct{}

func (noopVFSMetrics) RecordLookup(string, bool)                      {}
func (noopVFSMetrics) ObserveFanOut(time.Duration, error)             {}
func (noopVFSMetrics) ObserveLockWait(string, time.Duration)          {}
func (noopVFSMetrics) RecordIngestionStart()                          {}
func (noopVFSMetrics) RecordIngestionEnd(int64, time.Duration, error) {}
