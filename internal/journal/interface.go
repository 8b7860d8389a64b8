package journal

import (
	"context"
	"time"
)

// Collector records poll-cycle outcomes locally, so an operator can
// tell a device outage from a storage outage when the time-series
// record stream goes quiet.
type Collector interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Entry is one cycle outcome
type Entry struct {
	Timestamp time.Time
	State     string
	Success   bool
	ErrorCode string
	Detail    string
}
