package viz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errFakeClosed = errors.New("fake transport closed")

type fakeTransport struct {
	url       string
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeTransport(url string) *fakeTransport {
	return &fakeTransport{
		url:    url,
		frames: make(chan []byte, 100),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case f := <-t.frames:
		return f, nil
	case <-t.closed:
		return nil, errFakeClosed
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed() {
		return errFakeClosed
	}
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// drop simulates the peer going away.
func (t *fakeTransport) drop() {
	t.Close()
}

func (t *fakeTransport) push(frame []byte) {
	t.frames <- frame
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  map[string]int
	dials map[string]int
	conns map[string][]*fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		fail:  make(map[string]int),
		dials: make(map[string]int),
		conns: make(map[string][]*fakeTransport),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[url]++
	if d.fail[url] > 0 {
		d.fail[url]--
		return nil, errors.Errorf("dial %s: connection refused", url)
	}
	t := newFakeTransport(url)
	d.conns[url] = append(d.conns[url], t)
	return t, nil
}

func (d *fakeDialer) failNext(url string, n int) {
	d.mu.Lock()
	d.fail[url] = n
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[url]
}

// open returns the transports to url that are not closed.
func (d *fakeDialer) open(url string) []*fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []*fakeTransport
	for _, t := range d.conns[url] {
		if !t.isClosed() {
			result = append(result, t)
		}
	}
	return result
}

// waitOpen waits for exactly one open transport to url.
func (d *fakeDialer) waitOpen(t *testing.T, url string) *fakeTransport {
	t.Helper()
	var conn *fakeTransport
	eventually(t, "open transport to "+url, func() bool {
		open := d.open(url)
		if len(open) != 1 {
			return false
		}
		conn = open[0]
		return true
	})
	return conn
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func testLogger() *logrus.Entry {
	l := NewLogger()
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}
