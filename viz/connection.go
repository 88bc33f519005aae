package viz

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// DefaultRetryDelay is used when a connection is built without one.
const DefaultRetryDelay = time.Second

type ConnectionOptions struct {
	URL        string
	Dialer     Dialer
	RetryDelay time.Duration

	// OnOpen runs on the connection goroutine after every successful dial.
	OnOpen func(c *Connection)
	// OnMessage receives each frame. Ownership of data moves to the callee.
	OnMessage func(data []byte)
	// OnDisconnect runs after an open transport was lost without Close
	// being called.
	OnDisconnect func()

	Logger  *logrus.Entry
	Metrics *Metrics
}

// Connection owns one transport to one URL. It moves through
// Connecting -> Open -> Closed and goes back to Connecting after a failed
// dial or an involuntary close. Close is final.
type Connection struct {
	opts    ConnectionOptions
	logger  *logrus.Entry
	metrics *Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu             sync.Mutex
	state          ConnState
	transport      Transport
	started        bool
	closeRequested bool
}

func NewConnection(opts ConnectionOptions) *Connection {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	c := &Connection{
		opts:    opts,
		logger:  moduleLogger(opts.Logger, "connection").WithField("url", opts.URL),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
		state:   StateConnecting,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start launches the connection goroutine. It returns immediately and
// does nothing once the connection was started or closed.
func (c *Connection) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closeRequested {
		return
	}
	c.started = true
	go c.run()
}

func (c *Connection) URL() string {
	return c.opts.URL
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection goroutine has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send writes data on the open transport.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return errNotOpen
	}
	return t.WriteMessage(data)
}

// Close stops the connection without waiting for the transport to shut
// down. Frames that arrive afterwards are discarded.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closeRequested {
		c.mu.Unlock()
		return
	}
	c.closeRequested = true
	t := c.transport
	if !c.started {
		c.state = StateClosed
		close(c.done)
	}
	c.mu.Unlock()

	c.cancel()
	if t != nil {
		t.Close()
	}
}

func (c *Connection) run() {
	defer close(c.done)
	defer c.setState(StateClosed)
	for {
		c.setState(StateConnecting)
		t, err := c.opts.Dialer.Dial(c.ctx, c.opts.URL)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warnf("Failed to connect, retrying in %s: %v", c.opts.RetryDelay, err)
			c.metrics.Reconnects.Inc()
			if !c.sleep() {
				return
			}
			continue
		}
		if !c.attach(t) {
			t.Close()
			return
		}
		c.logger.Debug("Connection open")
		c.metrics.Connections.Inc()
		if c.opts.OnOpen != nil {
			c.opts.OnOpen(c)
		}

		err = c.readLoop(t)
		voluntary := c.detach()
		t.Close()
		c.metrics.Connections.Dec()
		if voluntary {
			c.logger.Debug("Connection closed")
			return
		}
		c.logger.Warnf("Connection lost, reconnecting in %s: %v", c.opts.RetryDelay, err)
		if c.opts.OnDisconnect != nil {
			c.opts.OnDisconnect()
		}
		c.metrics.Reconnects.Inc()
		if !c.sleep() {
			return
		}
	}
}

func (c *Connection) readLoop(t Transport) error {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			return err
		}
		if c.closing() {
			return nil
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(data)
		}
	}
}

// attach publishes t as the open transport unless Close won the race.
func (c *Connection) attach(t Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeRequested {
		return false
	}
	c.transport = t
	c.state = StateOpen
	return true
}

// detach forgets the transport and reports whether the owner asked for
// the close.
func (c *Connection) detach() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = nil
	c.state = StateClosed
	return c.closeRequested
}

func (c *Connection) closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeRequested
}

func (c *Connection) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) sleep() bool {
	timer := time.NewTimer(c.opts.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}
