package resilience

import (
	"golang.org/x/sync/semaphore"
)

// Bulkhead caps the number of upstream operations in flight in this
// process.
type Bulkhead struct {
	max int64
	sem *semaphore.Weighted
}

// NewBulkhead creates a bulkhead. MaxConcurrent defaults to 10.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		max: config.MaxConcurrent,
		sem: semaphore.NewWeighted(config.MaxConcurrent),
	}
}

// TryAcquire takes a slot without waiting. It returns false when full.
func (b *Bulkhead) TryAcquire() bool {
	return b.sem.TryAcquire(1)
}

// Release returns a slot taken by TryAcquire.
func (b *Bulkhead) Release() {
	b.sem.Release(1)
}

// Max returns the configured limit.
func (b *Bulkhead) Max() int64 {
	return b.max
}
