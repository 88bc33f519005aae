package viz

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DirectoryListener observes topic membership. Calls are made from the
// control connection goroutine, one at a time.
type DirectoryListener interface {
	TopicAvailable(d TopicDescriptor)
	// TopicWithdrawn is called when a topic disappears, stops being
	// reachable or changes type or endpoint. Liveness is
	// LivenessUnknown when the control channel was lost.
	TopicWithdrawn(d TopicDescriptor)
	DirectoryStatus(connected bool)
}

type DirectoryOptions struct {
	URL        string
	Dialer     Dialer
	RetryDelay time.Duration
	Listener   DirectoryListener
	Logger     *logrus.Entry
	Metrics    *Metrics
}

// Directory keeps the live topic catalog in sync with the control
// channel. Only topics that are registered and reachable over websocket
// are kept.
type Directory struct {
	listener DirectoryListener
	logger   *logrus.Entry
	metrics  *Metrics
	conn     *Connection

	mu        sync.Mutex
	topics    map[string]TopicDescriptor
	connected bool
}

func NewDirectory(opts DirectoryOptions) *Directory {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	d := &Directory{
		listener: opts.Listener,
		logger:   moduleLogger(opts.Logger, "directory"),
		metrics:  opts.Metrics,
		topics:   make(map[string]TopicDescriptor),
	}
	d.conn = NewConnection(ConnectionOptions{
		URL:          opts.URL,
		Dialer:       opts.Dialer,
		RetryDelay:   opts.RetryDelay,
		OnOpen:       d.onOpen,
		OnMessage:    d.onMessage,
		OnDisconnect: d.onDisconnect,
		Logger:       d.logger,
		Metrics:      opts.Metrics,
	})
	return d
}

func (d *Directory) Start() {
	d.conn.Start()
}

// Close stops the control connection. Known topics are kept as they were.
func (d *Directory) Close() {
	d.conn.Close()
}

// Done is closed once the control connection has stopped.
func (d *Directory) Done() <-chan struct{} {
	return d.conn.Done()
}

func (d *Directory) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Lookup returns the live descriptor of topic.
func (d *Directory) Lookup(topic string) (TopicDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.topics[topic]
	return desc, ok
}

// Topics returns the live topics sorted by name.
func (d *Directory) Topics() []TopicDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]TopicDescriptor, 0, len(d.topics))
	for _, desc := range d.topics {
		result = append(result, desc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Topic < result[j].Topic })
	return result
}

func (d *Directory) onOpen(c *Connection) {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	d.metrics.DirectoryConnected.Set(1)
	d.logger.Info("Directory connected")
	if err := c.Send(TopicInfoRequest); err != nil {
		d.logger.Warnf("Failed to request topic info: %v", err)
	}
	if d.listener != nil {
		d.listener.DirectoryStatus(true)
	}
}

func (d *Directory) onMessage(data []byte) {
	descs, err := ParseTopicInfo(data)
	if err != nil {
		d.logger.Warnf("Ignoring control message: %v", err)
		return
	}
	d.apply(descs)
}

// apply replaces the catalog with a snapshot and reports the difference.
func (d *Directory) apply(descs []TopicDescriptor) {
	next := make(map[string]TopicDescriptor)
	for _, desc := range descs {
		if desc.Usable() {
			next[desc.Topic] = desc
		}
	}

	d.mu.Lock()
	prev := d.topics
	d.topics = next
	d.mu.Unlock()

	prevNames := topicNames(prev)
	nextNames := topicNames(next)
	withdrawn := setDifference(prevNames, nextNames)
	available := setDifference(nextNames, prevNames)
	for _, name := range setIntersection(prevNames, nextNames) {
		if !prev[name].sameRoute(next[name]) {
			withdrawn = append(withdrawn, name)
			available = append(available, name)
		}
	}
	sort.Strings(withdrawn)
	sort.Strings(available)

	for _, name := range withdrawn {
		d.logger.WithField("topic", name).Debug("Topic withdrawn")
		if d.listener != nil {
			d.listener.TopicWithdrawn(prev[name])
		}
	}
	for _, name := range available {
		d.logger.WithField("topic", name).Debugf("Topic available: %s", next[name].TypeName)
		if d.listener != nil {
			d.listener.TopicAvailable(next[name])
		}
	}
}

// onDisconnect withdraws the whole catalog. Routing data is not trusted
// again until a fresh snapshot arrives.
func (d *Directory) onDisconnect() {
	d.mu.Lock()
	prev := d.topics
	d.topics = make(map[string]TopicDescriptor)
	d.connected = false
	d.mu.Unlock()
	d.metrics.DirectoryConnected.Set(0)
	d.logger.Warn("Directory disconnected")

	if d.listener == nil {
		return
	}
	for _, name := range topicNames(prev) {
		desc := prev[name]
		desc.Liveness = LivenessUnknown
		d.listener.TopicWithdrawn(desc)
	}
	d.listener.DirectoryStatus(false)
}

func topicNames(topics map[string]TopicDescriptor) []string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
