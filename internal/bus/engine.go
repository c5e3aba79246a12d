package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Engine is the in-process Bus implementation. Each message group gets its
// own lane: a queue drained by a single goroutine, which gives the
// per-group FIFO and single-in-flight guarantees. A lane whose queue
// drains is reaped, goroutine included, and recreated on the next publish,
// so idle groups hold no resources. Failed handlers are retried in place
// up to MaxRetries, then the message is dropped with a log line; there is
// no dead-letter store.
type Engine struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	lanes    map[string]*lane
	pending  sync.WaitGroup

	maxRetries int
	logger     *slog.Logger
	baseCtx    context.Context
	cancel     context.CancelFunc
}

type lane struct {
	groupID string

	mu     sync.Mutex
	queue  []Message
	closed bool
}

// NewEngine builds an Engine. maxRetries is the number of redeliveries
// after the first attempt; values below zero are treated as zero.
func NewEngine(maxRetries int, logger *slog.Logger) *Engine {
	if maxRetries < 0 {
		maxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		handlers:   make(map[string][]Handler),
		lanes:      make(map[string]*lane),
		maxRetries: maxRetries,
		logger:     logger,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Subscribe registers a handler for a topic. All registration must happen
// before the first Publish.
func (e *Engine) Subscribe(topic string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[topic] = append(e.handlers[topic], h)
}

// Publish enqueues a message on its group's lane. The passed context only
// covers the enqueue; delivery runs on the engine's own context.
func (e *Engine) Publish(ctx context.Context, topic, groupID string, body any) error {
	b, err := Encode(body)
	if err != nil {
		return err
	}
	msg := Message{Topic: topic, GroupID: groupID, Body: b}

	// Push under e.mu so a concurrent reap cannot delete the lane between
	// the lookup and the enqueue.
	e.mu.Lock()
	ln, ok := e.lanes[groupID]
	if !ok {
		ln = &lane{groupID: groupID}
		e.lanes[groupID] = ln
		go e.run(ln)
	}
	ln.push(msg)
	e.pending.Add(1)
	e.mu.Unlock()

	return nil
}

// Drain blocks until every published message has been fully processed.
// Test helper; production shutdown goes through Close.
func (e *Engine) Drain() {
	e.pending.Wait()
}

// Close stops delivery. Messages still queued are abandoned.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	for _, ln := range e.lanes {
		ln.close()
	}
	e.mu.Unlock()
}

func (e *Engine) run(ln *lane) {
	for {
		msg, ok := ln.pop()
		if !ok {
			if e.reap(ln) {
				return
			}
			continue
		}
		e.deliver(msg)
		e.pending.Done()
	}
}

// reap removes a drained lane from the map, ending its goroutine. When a
// publish slipped in since the empty pop the lane stays and the caller
// keeps draining.
func (e *Engine) reap(ln *lane) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ln.mu.Lock()
	defer ln.mu.Unlock()
	if len(ln.queue) > 0 && !ln.closed {
		return false
	}
	delete(e.lanes, ln.groupID)
	return true
}

func (e *Engine) deliver(msg Message) {
	e.mu.Lock()
	hs := e.handlers[msg.Topic]
	e.mu.Unlock()

	for _, h := range hs {
		var err error
		for attempt := 0; attempt <= e.maxRetries; attempt++ {
			if e.baseCtx.Err() != nil {
				return
			}
			if err = h(e.baseCtx, msg); err == nil {
				break
			}
			e.logger.Warn("bus: handler failed, redelivering",
				"topic", msg.Topic, "group", msg.GroupID,
				"attempt", attempt+1, "error", err)
		}
		if err != nil {
			e.logger.Error("bus: dropping message after retries",
				"topic", msg.Topic, "group", msg.GroupID, "error", err)
		}
	}
}

func (ln *lane) push(msg Message) {
	ln.mu.Lock()
	ln.queue = append(ln.queue, msg)
	ln.mu.Unlock()
}

func (ln *lane) pop() (Message, bool) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	if len(ln.queue) == 0 || ln.closed {
		return Message{}, false
	}
	msg := ln.queue[0]
	ln.queue = ln.queue[1:]
	return msg, true
}

func (ln *lane) close() {
	ln.mu.Lock()
	ln.closed = true
	ln.mu.Unlock()
}
