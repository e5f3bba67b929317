package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls buffering. OnDrop, when set, is called for every event
// the dispatcher discards.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	OnDrop     func(Event)
}

// Dispatcher relays events to a sink on a single background goroutine, so
// the sink sees them in emission order.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	dropIfFull bool
	onDrop     func(Event)

	// ctx is handed to the sink and cancelled when Close gives up.
	ctx     context.Context
	abandon context.CancelFunc

	stop      chan struct{}
	finished  chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewDispatcher starts a dispatcher. It returns nil when auditing is
// disabled; a nil *Dispatcher accepts and discards everything.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, cfg.BufferSize),
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
		ctx:        ctx,
		abandon:    cancel,
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues event. With DropIfFull a full buffer drops the event;
// otherwise Emit waits for room until ctx ends.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.drop(event)
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.stop:
		d.drop(event)
	}
}

// Close stops accepting events and delivers the buffered ones until ctx
// ends. Events still queued at that point are dropped and ctx.Err() is
// returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
	})

	select {
	case <-d.finished:
		return nil
	case <-ctx.Done():
		d.abandon()
		return ctx.Err()
	}
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.finished)
	defer d.abandon()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	if d.ctx.Err() != nil {
		d.drop(event)
		return
	}
	d.sink.Emit(d.ctx, event)
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(event)
	}
}
