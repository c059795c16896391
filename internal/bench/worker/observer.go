package worker

import "time"

// Observer receives live events from running workers.
// Implementations must be safe for concurrent use.
type Observer interface {
	WorkerStarted(id int)
	WorkerFinished(id int)
	ResolutionFailed()
	RequestCompleted(latency time.Duration)
	RequestFailed(op Op)
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) WorkerStarted(int)              {}
func (NopObserver) WorkerFinished(int)             {}
func (NopObserver) ResolutionFailed()              {}
func (NopObserver) RequestCompleted(time.Duration) {}
func (NopObserver) RequestFailed(Op)               {}
