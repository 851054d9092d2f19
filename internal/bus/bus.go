// Package bus is the typed request/response/event channel between the
// aggregator unit and the watcher units. Workers are isolated execution
// units; every payload crosses as a structural copy, with big integers
// carried as decimal strings.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// DefaultRequestTimeout bounds every bus round-trip.
const DefaultRequestTimeout = 10_000 * time.Millisecond

// Request is a correlated ask sent to a worker.
type Request struct {
	CorrelationID uint64
	Name          string
	Data          any
}

// Response answers a request by correlation id.
type Response struct {
	CorrelationID uint64
	Data          any
	Error         error
}

// Event is a fire-and-forget notification.
type Event struct {
	WorkerID string
	Name     string
	Data     any
}

// EventHandler consumes events published by workers.
type EventHandler func(ev Event)

// pendingEntry tracks one in-flight request.
type pendingEntry struct {
	workerID string
	handle   *Handle
	timer    *time.Timer
}

// WorkerPort is a worker's end of the bus: an inbox of requests and
// events, and a reply path.
type WorkerPort struct {
	id       string
	bus      *Bus
	requests chan Request
	events   chan Event
}

// Requests is the worker's request inbox.
func (p *WorkerPort) Requests() <-chan Request { return p.requests }

// Events is the worker's event inbox.
func (p *WorkerPort) Events() <-chan Event { return p.events }

// Respond completes a request; unmatched correlation ids are dropped.
func (p *WorkerPort) Respond(resp Response) {
	p.bus.complete(resp)
}

// Publish sends an event from the worker to the bus subscribers.
func (p *WorkerPort) Publish(name string, data any) {
	p.bus.publish(Event{WorkerID: p.id, Name: name, Data: data})
}

// Bus routes messages between the aggregator and the workers.
type Bus struct {
	log     logger.LoggerInterface
	timeout time.Duration

	nextCorrelation atomic.Uint64

	mu       sync.Mutex
	workers  map[string]*WorkerPort
	pending  map[uint64]*pendingEntry
	handlers map[uint64]EventHandler
	nextSub  uint64
}

// New creates a bus with the default request timeout.
func New(log logger.LoggerInterface) *Bus {
	return NewWithTimeout(log, DefaultRequestTimeout)
}

// NewWithTimeout creates a bus with a custom request timeout.
func NewWithTimeout(log logger.LoggerInterface, timeout time.Duration) *Bus {
	return &Bus{
		log:      log,
		timeout:  timeout,
		workers:  make(map[string]*WorkerPort),
		pending:  make(map[uint64]*pendingEntry),
		handlers: make(map[uint64]EventHandler),
	}
}

// RegisterWorker creates a worker port with a buffered inbox.
func (b *Bus) RegisterWorker(id string, inboxSize int) *WorkerPort {
	port := &WorkerPort{
		id:       id,
		bus:      b,
		requests: make(chan Request, inboxSize),
		events:   make(chan Event, inboxSize),
	}

	b.mu.Lock()
	b.workers[id] = port
	b.mu.Unlock()
	return port
}

// SendRequest posts a request to a worker and returns a completion handle.
// The handle fails with Timeout after the bus timeout, with WorkerFailed
// or WorkerTerminated when the worker dies, or with Cancelled.
func (b *Bus) SendRequest(workerID, name string, data any) *Handle {
	corr := b.nextCorrelation.Add(1)
	handle := newHandle(corr)

	b.mu.Lock()
	port, ok := b.workers[workerID]
	if !ok {
		b.mu.Unlock()
		handle.fail(apperror.New(apperror.CodeWorkerFailed,
			apperror.WithContext("unknown worker "+workerID)))
		return handle
	}

	entry := &pendingEntry{workerID: workerID, handle: handle}
	entry.timer = time.AfterFunc(b.timeout, func() {
		b.expire(corr)
	})
	b.pending[corr] = entry
	b.mu.Unlock()

	handle.onCancel = func() { b.cancel(corr) }

	// Encode-then-decode is the structural copy: the receiver never shares
	// pointers with the sender, and big integers survive as exact values.
	req := Request{CorrelationID: corr, Name: name, Data: decodePayload(encodePayload(data))}
	select {
	case port.requests <- req:
	default:
		// Inbox full: fail fast rather than block the caller's unit.
		b.remove(corr)
		handle.fail(apperror.New(apperror.CodeWorkerFailed,
			apperror.WithContext("worker inbox full: "+workerID)))
	}
	return handle
}

// SendEvent delivers a fire-and-forget event to a worker.
func (b *Bus) SendEvent(workerID, name string, data any) {
	b.mu.Lock()
	port, ok := b.workers[workerID]
	b.mu.Unlock()
	if !ok {
		return
	}

	select {
	case port.events <- Event{WorkerID: workerID, Name: name, Data: decodePayload(encodePayload(data))}:
	default:
		b.log.Warn(context.Background(), "worker event inbox full, event dropped",
			"worker", workerID, "event", name)
	}
}

// Subscribe registers an event handler; the returned function
// unsubscribes it.
func (b *Bus) Subscribe(handler EventHandler) func() {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// FailWorker sweeps every pending request for a worker with the given
// error code and removes the worker.
func (b *Bus) FailWorker(workerID string, code apperror.Code) {
	b.mu.Lock()
	delete(b.workers, workerID)

	var swept []*pendingEntry
	for corr, entry := range b.pending {
		if entry.workerID != workerID {
			continue
		}
		entry.timer.Stop()
		delete(b.pending, corr)
		swept = append(swept, entry)
	}
	b.mu.Unlock()

	for _, entry := range swept {
		entry.handle.fail(apperror.New(code,
			apperror.WithContext("worker "+workerID)))
	}
}

// PendingCount reports in-flight requests, mainly for tests and stats.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// complete resolves a pending request from a worker response.
func (b *Bus) complete(resp Response) {
	b.mu.Lock()
	entry, ok := b.pending[resp.CorrelationID]
	if ok {
		entry.timer.Stop()
		delete(b.pending, resp.CorrelationID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if resp.Error != nil {
		entry.handle.fail(resp.Error)
		return
	}
	entry.handle.complete(decodePayload(encodePayload(resp.Data)))
}

// expire fails a request on timeout.
func (b *Bus) expire(corr uint64) {
	b.mu.Lock()
	entry, ok := b.pending[corr]
	if ok {
		delete(b.pending, corr)
	}
	b.mu.Unlock()

	if ok {
		entry.handle.fail(apperror.New(apperror.CodeTimeout))
	}
}

// cancel clears a pending entry at the originator's request.
func (b *Bus) cancel(corr uint64) {
	b.mu.Lock()
	entry, ok := b.pending[corr]
	if ok {
		entry.timer.Stop()
		delete(b.pending, corr)
	}
	b.mu.Unlock()

	if ok {
		entry.handle.fail(apperror.New(apperror.CodeCancelled))
	}
}

// remove drops a pending entry without completing the handle.
func (b *Bus) remove(corr uint64) {
	b.mu.Lock()
	if entry, ok := b.pending[corr]; ok {
		entry.timer.Stop()
		delete(b.pending, corr)
	}
	b.mu.Unlock()
}

// publish fans an event out to every subscriber on the caller's thread.
func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	ev.Data = decodePayload(encodePayload(ev.Data))
	for _, h := range handlers {
		h(ev)
	}
}
