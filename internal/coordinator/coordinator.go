// Package coordinator broadcasts catalog replacements to every registered
// registry.
//
// Each registry gets its own mailbox: an unbounded queue drained by one
// goroutine that applies messages strictly in the order they were published.
// Publishing only appends to the queues, so a slow registry never holds up
// the publisher or the other registries.
package coordinator

import (
	"log/slog"
	"sync"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/registry"
	"github.com/hlop3z/tilehouse/internal/source"
)

// Subscriber receives catalog messages. *registry.Registry implements it.
type Subscriber interface {
	ID() string
	StartWatching() error
	Apply(msg registry.Message)
	Done() <-chan struct{}
}

// Coordinator fans catalog messages out to subscribers.
type Coordinator struct {
	logger *slog.Logger

	mu        sync.Mutex
	seq       uint64
	mailboxes map[string]*mailbox
	closed    bool
	wg        sync.WaitGroup
}

// New creates a coordinator. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:    logger,
		mailboxes: make(map[string]*mailbox),
	}
}

// Register starts delivering broadcasts to sub. A subscriber can be
// registered once; a second registration of the same id is rejected.
func (c *Coordinator) Register(sub Subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return alerr.New(alerr.EInternalError, "coordinator is closed")
	}
	if _, exists := c.mailboxes[sub.ID()]; exists {
		return alerr.New(alerr.EInternalError, "registry already registered").With("registry", sub.ID())
	}
	if err := sub.StartWatching(); err != nil {
		return err
	}

	mb := &mailbox{
		sub:    sub,
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	c.mailboxes[sub.ID()] = mb

	c.wg.Add(1)
	go c.deliver(mb)

	c.logger.Debug("registry registered", "registry", sub.ID())
	return nil
}

// Unregister stops delivery to the subscriber with the given id. Queued
// messages are dropped.
func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	mb, ok := c.mailboxes[id]
	if ok {
		delete(c.mailboxes, id)
	}
	c.mu.Unlock()

	if ok {
		mb.close()
		c.logger.Debug("registry unregistered", "registry", id)
	}
}

// Len returns the number of registered subscribers.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mailboxes)
}

// PublishTables broadcasts a replacement table catalog. It returns the
// message's sequence number.
func (c *Coordinator) PublishTables(cat *source.Catalog) (uint64, error) {
	return c.publish(cat, source.KindTable)
}

// PublishFunctions broadcasts a replacement function catalog. It returns the
// message's sequence number.
func (c *Coordinator) PublishFunctions(cat *source.Catalog) (uint64, error) {
	return c.publish(cat, source.KindFunction)
}

func (c *Coordinator) publish(cat *source.Catalog, kind source.Kind) (uint64, error) {
	if cat == nil || cat.Kind() != kind {
		return 0, alerr.Newf(alerr.EInternalError, "publish needs a %s catalog", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, alerr.New(alerr.EInternalError, "coordinator is closed")
	}

	c.seq++
	msg := registry.Message{Seq: c.seq, Catalog: cat}
	for _, mb := range c.mailboxes {
		mb.push(msg)
	}

	c.logger.Debug("catalog published",
		"seq", msg.Seq,
		"kind", kind.String(),
		"sources", cat.Len(),
		"registries", len(c.mailboxes),
	)
	return msg.Seq, nil
}

// Close stops every mailbox and waits for in-progress deliveries to return.
// Later publishes and registrations fail.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	boxes := c.mailboxes
	c.mailboxes = map[string]*mailbox{}
	c.mu.Unlock()

	for _, mb := range boxes {
		mb.close()
	}
	c.wg.Wait()
}

// deliver drains one mailbox until it is stopped or its subscriber goes
// away. A subscriber that is gone is unregistered and its queue dropped.
func (c *Coordinator) deliver(mb *mailbox) {
	defer c.wg.Done()

	for {
		select {
		case <-mb.stop:
			return
		case <-mb.sub.Done():
			c.Unregister(mb.sub.ID())
			return
		case <-mb.signal:
			for _, msg := range mb.take() {
				select {
				case <-mb.stop:
					return
				case <-mb.sub.Done():
					c.Unregister(mb.sub.ID())
					return
				default:
				}
				mb.sub.Apply(msg)
			}
		}
	}
}

type mailbox struct {
	sub Subscriber

	mu     sync.Mutex
	queue  []registry.Message
	signal chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
}

func (m *mailbox) push(msg registry.Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []registry.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) close() {
	m.stopOnce.Do(func() { close(m.stop) })
}
