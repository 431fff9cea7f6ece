package stats

import "time"

// ErrorKind classifies why a request failed. Empty means success.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindConnectionReset   ErrorKind = "connection_reset"
	KindDNS               ErrorKind = "dns"
	KindTLS               ErrorKind = "tls"
	KindEOF               ErrorKind = "eof"
	KindInvalidURL        ErrorKind = "invalid_url"
	KindCancelled         ErrorKind = "cancelled"
	KindHTTP              ErrorKind = "http"       // status >= 400
	KindValidation        ErrorKind = "validation" // unexpected status or body
	KindOther             ErrorKind = "other"
)

// RequestResult is the outcome of one call made by a virtual user.
// It is immutable once recorded.
type RequestResult struct {
	UserID       string
	Task         string
	Name         string // stats grouping name; defaults to Path
	Method       string
	Path         string
	Status       int // 0 when no response was received
	ErrorKind    ErrorKind
	Error        string
	Latency      time.Duration
	RequestSize  int64
	ResponseSize int64
	Timestamp    time.Time // when the request was issued
}

// Failed reports whether the request counts as a failure
func (r RequestResult) Failed() bool {
	return r.ErrorKind != KindNone
}

// GroupName returns the name used to key this result in a snapshot
func (r RequestResult) GroupName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Path
}

// Recorder receives request results
type Recorder interface {
	Record(result RequestResult)
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(result RequestResult)

// Record calls f(result)
func (f RecorderFunc) Record(result RequestResult) {
	f(result)
}

// Fanout duplicates every result into each recorder, in order
type Fanout []Recorder

// Record forwards result to every recorder
func (f Fanout) Record(result RequestResult) {
	for _, r := range f {
		r.Record(result)
	}
}
