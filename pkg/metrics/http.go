package metrics

import "time"

// HTTPMetrics provides observability for the HTTP surface.
type HTTPMetrics interface {
	// RecordRequest records one completed request.
	//
	// Parameters:
	//   - route: "webdav", "download", "upload" or "token"
	//   - method: HTTP method
	//   - status: response status code
	//   - duration: time to produce the response
	RecordRequest(route, method string, status int, duration time.Duration)

	// RecordBytes records bytes served ("out") or received ("in").
	RecordBytes(route, direction string, bytes int64)

	// RecordTokenIssued increments the issued token counter.
	RecordTokenIssued()

	// CountAuditEvent counts one audit event. It lets HTTPMetrics serve as
	// an audit.Counter.
	CountAuditEvent(kind, objectType string)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(string, string, int, time.Duration) {}
func (noopHTTPMetrics) RecordBytes(string, string, int64)                {}
func (noopHTTPMetrics) RecordTokenIssued()                               {}
func (noopHTTPMetrics) CountAuditEvent(string, string)                   {}
