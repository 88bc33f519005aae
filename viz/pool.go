package viz

import (
	"sort"
	"sync"
	"time"

	"github.com/edwinhayes/rosviz/msgs"
	"github.com/sirupsen/logrus"
)

// Sink receives the output of a Pool. Both methods are called without any
// Pool lock held, from connection or decode goroutines.
type Sink interface {
	OnRecord(consumerID int, rec *Record)
	// OnWithdrawn tells a consumer its subscription to topic was closed
	// by the directory.
	OnWithdrawn(consumerID int, topic string)
}

type PoolOptions struct {
	Dialer     Dialer
	Registry   *msgs.Registry
	Workers    int
	QueueLen   int
	RetryDelay time.Duration
	Sink       Sink
	Logger     *logrus.Entry
	Metrics    *Metrics
}

// subscription binds one connection to one topic. It exists only while
// consumers is non-empty.
type subscription struct {
	topic      string
	typeName   string
	endpoint   Endpoint
	conn       *Connection
	consumers  map[int]struct{}
	generation uint64
}

// Pool is the registry of topic subscriptions. It guarantees at most one
// open connection per topic and owns the decode workers.
type Pool struct {
	opts    PoolOptions
	logger  *logrus.Entry
	metrics *Metrics
	decoder *DecodePool

	mu             sync.Mutex
	subs           map[string]*subscription
	lastGeneration uint64
	closed         bool
}

func NewPool(opts PoolOptions) *Pool {
	if opts.Registry == nil {
		opts.Registry = msgs.NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	p := &Pool{
		opts:    opts,
		logger:  moduleLogger(opts.Logger, "pool"),
		metrics: opts.Metrics,
		subs:    make(map[string]*subscription),
	}
	p.decoder = NewDecodePool(opts.Registry, opts.Workers, opts.QueueLen, p.deliver, opts.Logger, opts.Metrics)
	p.decoder.Start()
	return p
}

// Subscribe registers consumerID's interest in topic. Any other topic of
// the same type the consumer was bound to is released first. The first
// consumer of a topic opens its connection; the call itself never blocks
// on the network.
func (p *Pool) Subscribe(consumerID int, typeName, topic string, endpoint Endpoint) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	var toClose []*Connection
	for key, sub := range p.subs {
		if key == topic || sub.typeName != typeName {
			continue
		}
		if conn, ok := p.removeLocked(sub, consumerID); ok {
			p.logger.Debugf("%d stop listening %s", consumerID, key)
			if conn != nil {
				toClose = append(toClose, conn)
			}
		}
	}

	sub, ok := p.subs[topic]
	if !ok {
		p.lastGeneration++
		sub = &subscription{
			topic:      topic,
			typeName:   typeName,
			endpoint:   endpoint,
			consumers:  make(map[int]struct{}),
			generation: p.lastGeneration,
		}
		sub.conn = NewConnection(ConnectionOptions{
			URL:        endpoint.URL(),
			Dialer:     p.opts.Dialer,
			RetryDelay: p.opts.RetryDelay,
			OnMessage: func(data []byte) {
				p.onFrame(sub, data)
			},
			Logger:  p.logger.WithField("topic", topic),
			Metrics: p.metrics,
		})
		p.subs[topic] = sub
		sub.conn.Start()
		p.logger.Debugf("subscribe %s (%s) at %s", topic, typeName, endpoint.URL())
	}
	sub.consumers[consumerID] = struct{}{}
	p.mu.Unlock()

	for _, conn := range toClose {
		conn.Close()
	}
	return nil
}

// Unsubscribe releases consumerID's interest in topic. Unknown topics and
// consumers are ignored.
func (p *Pool) Unsubscribe(consumerID int, topic string) {
	p.mu.Lock()
	var conn *Connection
	if sub, ok := p.subs[topic]; ok {
		conn, _ = p.removeLocked(sub, consumerID)
	}
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// UnsubscribeAll releases every interest held by consumerID and returns
// the topics it was subscribed to.
func (p *Pool) UnsubscribeAll(consumerID int) []string {
	p.mu.Lock()
	var topics []string
	var toClose []*Connection
	for topic, sub := range p.subs {
		conn, ok := p.removeLocked(sub, consumerID)
		if !ok {
			continue
		}
		topics = append(topics, topic)
		if conn != nil {
			toClose = append(toClose, conn)
		}
	}
	p.mu.Unlock()
	for _, conn := range toClose {
		conn.Close()
	}
	sort.Strings(topics)
	return topics
}

// OnTopicWithdrawn closes the subscription to topic regardless of its
// consumers and notifies each of them.
func (p *Pool) OnTopicWithdrawn(topic string) {
	p.mu.Lock()
	sub, ok := p.subs[topic]
	if ok {
		delete(p.subs, topic)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.logger.Debugf("unsubscribe %s: topic withdrawn", topic)
	sub.conn.Close()
	if p.opts.Sink != nil {
		for _, id := range sortedKeys(sub.consumers) {
			p.opts.Sink.OnWithdrawn(id, topic)
		}
	}
}

// Close tears down every subscription and stops the decode workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := p.subs
	p.subs = make(map[string]*subscription)
	p.mu.Unlock()

	for _, sub := range subs {
		sub.conn.Close()
	}
	p.decoder.Close()
}

// Topics lists the topics with an open subscription.
func (p *Pool) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.subs))
	for topic := range p.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Consumers lists the consumers subscribed to topic.
func (p *Pool) Consumers(topic string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[topic]
	if !ok {
		return nil
	}
	return sortedKeys(sub.consumers)
}

// Endpoint returns the endpoint topic is subscribed at.
func (p *Pool) Endpoint(topic string) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[topic]
	if !ok {
		return Endpoint{}, false
	}
	return sub.endpoint, true
}

// removeLocked drops consumerID from sub. When sub becomes empty it is
// discarded and its connection returned so the caller can close it after
// releasing the lock.
func (p *Pool) removeLocked(sub *subscription, consumerID int) (*Connection, bool) {
	if _, ok := sub.consumers[consumerID]; !ok {
		return nil, false
	}
	delete(sub.consumers, consumerID)
	if len(sub.consumers) > 0 {
		return nil, true
	}
	delete(p.subs, sub.topic)
	p.logger.Debugf("unsubscribe %s", sub.topic)
	return sub.conn, true
}

func (p *Pool) onFrame(sub *subscription, data []byte) {
	p.mu.Lock()
	if p.subs[sub.topic] != sub {
		p.mu.Unlock()
		return
	}
	frame := Frame{
		Topic:        sub.topic,
		TypeName:     sub.typeName,
		Data:         data,
		Destinations: sortedKeys(sub.consumers),
		Generation:   sub.generation,
	}
	p.mu.Unlock()

	p.metrics.FramesReceived.WithLabelValues(frame.Topic).Inc()
	// drops are counted by the decoder; per frame logging stays at debug
	switch err := p.decoder.Submit(frame); err {
	case nil:
	case ErrDecoderClosed:
		p.logger.WithField("topic", frame.Topic).Debug("Decoder closed, dropping frame")
	default:
		p.logger.WithField("topic", frame.Topic).Debugf("Dropping frame: %v", err)
	}
}

// deliver fans rec out to the consumers that are still subscribed to the
// same generation of its topic.
func (p *Pool) deliver(rec Record) {
	p.mu.Lock()
	sub, ok := p.subs[rec.Topic]
	if !ok || sub.generation != rec.Generation {
		p.mu.Unlock()
		p.metrics.dropped(DropStale)
		return
	}
	targets := make([]int, 0, len(rec.Destinations))
	for _, id := range rec.Destinations {
		if _, ok := sub.consumers[id]; ok {
			targets = append(targets, id)
		}
	}
	p.mu.Unlock()

	if len(targets) == 0 || p.opts.Sink == nil {
		return
	}
	rec.Destinations = targets
	for _, id := range targets {
		p.opts.Sink.OnRecord(id, &rec)
	}
}
