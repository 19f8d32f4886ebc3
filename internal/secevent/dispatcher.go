package secevent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultFlushTimeout = 2 * time.Second

// Config controls dispatcher buffering and shutdown behavior.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	FlushTimeout time.Duration
}

// Dispatcher forwards security events to a sink from a single worker
// goroutine. Drops are accounted per event type so a flooding event family
// (e.g. authentication failures under attack) is distinguishable from a
// generally undersized buffer. Close flushes the queue but gives up after
// FlushTimeout; a slow sink must not pin engine shutdown.
type Dispatcher struct {
	sink         Sink
	queue        chan Event
	quit         chan struct{}
	flushed      chan struct{}
	block        bool
	flushTimeout time.Duration

	droppedTotal atomic.Uint64
	mu           sync.Mutex
	droppedBy    map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:         sink,
		queue:        make(chan Event, cfg.BufferSize),
		quit:         make(chan struct{}),
		flushed:      make(chan struct{}),
		block:        !cfg.DropIfFull,
		flushTimeout: cfg.FlushTimeout,
		droppedBy:    make(map[string]uint64),
	}

	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer close(d.flushed)

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			deadline := time.NewTimer(d.flushTimeout)
			defer deadline.Stop()
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(context.Background(), event)
				case <-deadline.C:
					return
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.block {
		select {
		case d.queue <- event:
		case <-ctx.Done():
			d.recordDrop(event.EventType)
		case <-d.quit:
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.quit:
	default:
		d.recordDrop(event.EventType)
	}
}

func (d *Dispatcher) recordDrop(eventType string) {
	d.droppedTotal.Add(1)
	d.mu.Lock()
	d.droppedBy[eventType]++
	d.mu.Unlock()
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		select {
		case <-d.flushed:
		case <-time.After(d.flushTimeout):
		}
	})
}

// Dropped reports the total number of events discarded since start.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.droppedTotal.Load()
}

// DroppedByType reports discarded events broken down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.droppedBy))
	for k, v := range d.droppedBy {
		out[k] = v
	}
	return out
}
