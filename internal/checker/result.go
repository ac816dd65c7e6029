package checker

import (
	"strconv"
	"time"
)

// StatusException marks a result whose last attempt ended without an HTTP
// response.
const StatusException = -1

// Kind classifies the outcome of a single attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindStatus
	KindTransient
	KindProxy
	KindCertificate
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindStatus:
		return "status"
	case KindTransient:
		return "transient"
	case KindProxy:
		return "proxy"
	case KindCertificate:
		return "certificate"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of a completed check.
type Result struct {
	URL          string
	Status       int
	ResponseTime time.Duration
	CheckedAt    time.Time
	Error        string
	Kind         Kind
	Attempts     int
	Proxy        string
}

// Up reports whether the endpoint answered 200.
func (r Result) Up() bool {
	return r.Status == 200
}

// StatusText renders the status for messages and the result sink.
func (r Result) StatusText() string {
	if r.Status == StatusException {
		return "Exception"
	}
	return strconv.Itoa(r.Status)
}
