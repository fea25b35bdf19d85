package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// defaultEventQueueSize bounds events waiting for the broker.
const defaultEventQueueSize = 256

// EventMessage is the JSON payload published for each auth event.
type EventMessage struct {
	Type       string `json:"type"`
	Outcome    string `json:"outcome"`
	Username   string `json:"username,omitempty"`
	Target     string `json:"target,omitempty"`
	Detail     string `json:"detail,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// NewEventMessage converts an auth event to its wire form.
func NewEventMessage(ev auth.Event) EventMessage {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return EventMessage{
		Type:       string(ev.Type),
		Outcome:    ev.Outcome(),
		Username:   ev.Username,
		Target:     ev.Target,
		Detail:     ev.Detail,
		RemoteAddr: ev.RemoteAddr,
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
	}
}

// jsonPublisher is satisfied by *Client.
type jsonPublisher interface {
	PublishJSON(topic string, v any) error
	Topics() Topics
}

// EventPublisher is an auth.EventRecorder that forwards events to MQTT.
// Record only enqueues; a single goroutine publishes in order. When the
// queue is full the event is dropped with a warning so a slow broker never
// stalls a login.
type EventPublisher struct {
	pub    jsonPublisher
	logger Logger
	queue  chan EventMessage

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEventPublisher starts the publishing goroutine. Call Close to drain it.
func NewEventPublisher(client *Client, logger Logger) *EventPublisher {
	return newEventPublisher(client, logger, defaultEventQueueSize)
}

func newEventPublisher(pub jsonPublisher, logger Logger, size int) *EventPublisher {
	p := &EventPublisher{
		pub:    pub,
		logger: logger,
		queue:  make(chan EventMessage, size),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Record implements auth.EventRecorder.
func (p *EventPublisher) Record(_ context.Context, ev auth.Event) {
	msg := NewEventMessage(ev)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.warn("mqtt event queue full, dropping event", "type", msg.Type)
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *EventPublisher) run() {
	defer p.wg.Done()
	topics := p.pub.Topics()
	for msg := range p.queue {
		if err := p.pub.PublishJSON(topics.Event(msg.Type), msg); err != nil {
			p.warn("publishing auth event", "type", msg.Type, "error", err)
		}
	}
}

func (p *EventPublisher) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
