package proximity

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/1F47E/go-proximity/pkg/models"
)

// Stream is a live position subscription. Samples arrive on C until the stream
// is stopped or replaced by a newer Watch, at which point C is closed.
type Stream struct {
	id   string
	svc  *Service
	ch   chan models.PositionSample
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	sub     Subscription
	dropped atomic.Int64
}

func newStream(svc *Service, buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{
		id:   uuid.NewString(),
		svc:  svc,
		ch:   make(chan models.PositionSample, buffer),
		done: make(chan struct{}),
	}
}

// ID is the opaque subscription handle
func (st *Stream) ID() string {
	return st.id
}

// C delivers position samples
func (st *Stream) C() <-chan models.PositionSample {
	return st.ch
}

// Done is closed as soon as the stream is stopped, while C may still hold
// buffered samples
func (st *Stream) Done() <-chan struct{} {
	return st.done
}

// Dropped counts samples discarded because the consumer fell behind
func (st *Stream) Dropped() int64 {
	return st.dropped.Load()
}

// Stop releases this stream. Stopping a stream that was already replaced
// leaves the newer stream running.
func (st *Stream) Stop() {
	st.svc.release(st)
}

// deliver is the provider callback. The newest sample always wins: when the
// buffer is full the oldest queued sample is discarded.
func (st *Stream) deliver(sample models.PositionSample) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return
	}
	st.svc.remember(sample)

	dropped := false
	select {
	case st.ch <- sample:
	default:
		select {
		case <-st.ch:
			dropped = true
			st.dropped.Add(1)
		default:
		}
		st.ch <- sample
	}

	if st.svc.metrics != nil {
		st.svc.metrics.UpdateDelivered(dropped)
	}
}

func (st *Stream) attach(sub Subscription) {
	st.mu.Lock()
	st.sub = sub
	st.mu.Unlock()
}

// close reports whether this call did the closing
func (st *Stream) close() bool {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return false
	}
	st.closed = true
	sub := st.sub
	st.sub = nil
	close(st.done)
	close(st.ch)
	st.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
	return true
}
