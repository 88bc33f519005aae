package viz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edwinhayes/rosviz/msgs"
	"github.com/sirupsen/logrus"
)

type ConsoleOptions struct {
	DirectoryURL        string
	Dialer              Dialer
	Registry            *msgs.Registry
	DecodeWorkers       int
	DecodeQueueLen      int
	RecordQueueLen      int
	DataRetryDelay      time.Duration
	DirectoryRetryDelay time.Duration
	Logger              *logrus.Entry
	Metrics             *Metrics
}

// Console ties the directory, the subscription pool and the views
// together. Records and withdrawals are applied to views as jobs on the
// event loop driven by Spin or SpinOnce.
type Console struct {
	logger    *logrus.Entry
	metrics   *Metrics
	pool      *Pool
	directory *Directory
	jobChan   chan func()
	quit      chan struct{}

	viewsMu sync.Mutex
	views   map[int]*ViewState
	nextID  int

	ok           bool
	okMutex      sync.RWMutex
	shutdownOnce sync.Once
}

var (
	_ Sink              = (*Console)(nil)
	_ DirectoryListener = (*Console)(nil)
)

func NewConsole(opts ConsoleOptions) *Console {
	if opts.Dialer == nil {
		opts.Dialer = &WebsocketDialer{ClientID: NewClientID()}
	}
	if opts.RecordQueueLen <= 0 {
		opts.RecordQueueLen = 100
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	c := &Console{
		logger:  moduleLogger(opts.Logger, "console"),
		metrics: opts.Metrics,
		jobChan: make(chan func(), opts.RecordQueueLen),
		quit:    make(chan struct{}),
		views:   make(map[int]*ViewState),
		ok:      true,
	}
	c.pool = NewPool(PoolOptions{
		Dialer:     opts.Dialer,
		Registry:   opts.Registry,
		Workers:    opts.DecodeWorkers,
		QueueLen:   opts.DecodeQueueLen,
		RetryDelay: opts.DataRetryDelay,
		Sink:       c,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	c.directory = NewDirectory(DirectoryOptions{
		URL:        opts.DirectoryURL,
		Dialer:     opts.Dialer,
		RetryDelay: opts.DirectoryRetryDelay,
		Listener:   c,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	c.logger.Debugf("Directory URL = %s", opts.DirectoryURL)
	return c
}

// Start connects to the directory.
func (c *Console) Start() {
	c.directory.Start()
}

func (c *Console) OK() bool {
	c.okMutex.RLock()
	ok := c.ok
	c.okMutex.RUnlock()
	return ok
}

func (c *Console) Pool() *Pool {
	return c.pool
}

func (c *Console) Directory() *Directory {
	return c.directory
}

// Topics returns the live topics known to the directory.
func (c *Console) Topics() []TopicDescriptor {
	return c.directory.Topics()
}

// AddView creates a view with a fresh id.
func (c *Console) AddView() *ViewState {
	c.viewsMu.Lock()
	defer c.viewsMu.Unlock()
	v := newViewState(c.nextID)
	c.views[v.id] = v
	c.nextID++
	c.logger.Debugf("Add view %d", v.id)
	return v
}

// RemoveView drops the view and releases all of its topic interest before
// returning. Connection teardown happens in the background.
func (c *Console) RemoveView(id int) {
	c.viewsMu.Lock()
	_, ok := c.views[id]
	delete(c.views, id)
	c.viewsMu.Unlock()
	if !ok {
		return
	}
	topics := c.pool.UnsubscribeAll(id)
	c.logger.Debugf("Remove view %d, released %v", id, topics)
}

func (c *Console) View(id int) (*ViewState, bool) {
	c.viewsMu.Lock()
	defer c.viewsMu.Unlock()
	v, ok := c.views[id]
	return v, ok
}

// Views returns every view ordered by id.
func (c *Console) Views() []*ViewState {
	c.viewsMu.Lock()
	defer c.viewsMu.Unlock()
	result := make([]*ViewState, 0, len(c.views))
	for _, v := range c.views {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].id < result[j].id })
	return result
}

// Subscribe binds topic to the view for typeName, replacing any topic
// bound for that type. When the directory does not list topic yet the
// binding waits and is subscribed once the topic is announced.
func (c *Console) Subscribe(viewID int, typeName, topic string) error {
	v, ok := c.View(viewID)
	if !ok {
		return ErrNoSuchView
	}
	prev, cleared := v.bind(typeName, topic)
	if prev != "" && prev != topic {
		c.pool.Unsubscribe(viewID, prev)
	}
	if cleared {
		v.notify(typeName)
	}
	return c.subscribeView(v, typeName, topic)
}

// Unsubscribe releases the topic bound to the view for typeName.
func (c *Console) Unsubscribe(viewID int, typeName string) error {
	v, ok := c.View(viewID)
	if !ok {
		return ErrNoSuchView
	}
	topic, cleared := v.unbind(typeName)
	if topic != "" {
		c.pool.Unsubscribe(viewID, topic)
	}
	if cleared {
		v.notify(typeName)
	}
	return nil
}

func (c *Console) subscribeView(v *ViewState, typeName, topic string) error {
	logger := c.logger.WithField("topic", topic)
	desc, ok := c.directory.Lookup(topic)
	if !ok {
		logger.Debugf("View %d waits for topic", v.id)
		return nil
	}
	if desc.TypeName != typeName {
		logger.Warnf("View %d wants %s but topic carries %s", v.id, typeName, desc.TypeName)
		return nil
	}
	endpoint, _ := desc.WSEndpoint()
	if err := c.pool.Subscribe(v.id, typeName, topic, endpoint); err != nil {
		return err
	}
	// the directory may have moved on while the pool was subscribing
	if cur, ok := c.directory.Lookup(topic); !ok || !cur.sameRoute(desc) {
		c.pool.Unsubscribe(v.id, topic)
		return nil
	}
	// RemoveView may have released the view's topics meanwhile
	if _, live := c.View(v.id); !live {
		c.pool.Unsubscribe(v.id, topic)
		return nil
	}
	if !v.setSubscribed(typeName, topic) {
		c.pool.Unsubscribe(v.id, topic)
	}
	return nil
}

// SpinOnce runs at most one pending job, waiting up to 10ms for one.
func (c *Console) SpinOnce() {
	timeoutChan := time.After(10 * time.Millisecond)
	select {
	case job := <-c.jobChan:
		job()
	case <-timeoutChan:
		break
	}
}

// Spin runs jobs until ctx is done or the console is shut down.
func (c *Console) Spin(ctx context.Context) {
	for c.OK() {
		select {
		case job := <-c.jobChan:
			job()
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		}
	}
}

// Shutdown closes the directory and every subscription. Views are kept
// with their last state.
func (c *Console) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Debug("Shutting console down")
		c.okMutex.Lock()
		c.ok = false
		c.okMutex.Unlock()
		close(c.quit)

		c.logger.Debug("Close directory")
		c.directory.Close()
		<-c.directory.Done()
		c.logger.Debug("Close pool")
		c.pool.Close()
		c.logger.Debug("Shutting console down completed")
	})
}

// OnRecord queues rec for the view. Records are dropped when the event
// loop is behind.
func (c *Console) OnRecord(consumerID int, rec *Record) {
	job := func() {
		v, ok := c.View(consumerID)
		if ok && v.apply(rec) {
			c.metrics.RecordsDelivered.Inc()
		}
	}
	select {
	case c.jobChan <- job:
	case <-c.quit:
	default:
		c.metrics.dropped(DropRecordQueueFull)
		c.logger.WithField("topic", rec.Topic).Debugf("Event loop busy, dropping record for view %d", consumerID)
	}
}

func (c *Console) OnWithdrawn(consumerID int, topic string) {
	c.post(func() {
		if v, ok := c.View(consumerID); ok {
			v.withdraw(topic)
		}
	})
}

func (c *Console) TopicAvailable(desc TopicDescriptor) {
	c.post(func() {
		for _, v := range c.Views() {
			for _, typeName := range v.pending(desc.Topic) {
				if err := c.subscribeView(v, typeName, desc.Topic); err != nil {
					c.logger.WithField("topic", desc.Topic).Warnf("Failed to subscribe view %d: %v", v.id, err)
				}
			}
		}
	})
}

func (c *Console) TopicWithdrawn(desc TopicDescriptor) {
	c.pool.OnTopicWithdrawn(desc.Topic)
}

func (c *Console) DirectoryStatus(connected bool) {
	if connected {
		c.logger.Info("Directory connected")
	} else {
		c.logger.Warn("Directory disconnected, all topics withdrawn")
	}
}

// post queues a job that must not be lost. It blocks until the event
// loop has room or the console shuts down.
func (c *Console) post(job func()) {
	select {
	case c.jobChan <- job:
	case <-c.quit:
	}
}
