package viz

import (
	"hash/fnv"
	"sync"

	"github.com/edwinhayes/rosviz/msgs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Frame is a raw message read from a data channel together with the
// routing snapshot taken when it arrived.
type Frame struct {
	Topic        string
	TypeName     string
	Data         []byte
	Destinations []int
	Generation   uint64
}

// Record is a decoded frame. Records are shared by every destination and
// must be treated as read only.
type Record struct {
	Topic        string
	TypeName     string
	Kind         msgs.Kind
	Message      msgs.Message
	Destinations []int
	Generation   uint64
}

// DecodePool runs a fixed set of decode workers. All frames of a topic go
// to the same worker, which keeps them in arrival order.
type DecodePool struct {
	registry *msgs.Registry
	queues   []chan Frame
	emit     func(Record)
	logger   *logrus.Entry
	metrics  *Metrics

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDecodePool creates workers decode workers, each with a queue of
// queueLen frames. Decoded records are passed to emit on the worker
// goroutine.
func NewDecodePool(registry *msgs.Registry, workers, queueLen int, emit func(Record), logger *logrus.Entry, metrics *Metrics) *DecodePool {
	if workers <= 0 {
		workers = 1
	}
	if queueLen <= 0 {
		queueLen = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	p := &DecodePool{
		registry: registry,
		queues:   make([]chan Frame, workers),
		emit:     emit,
		logger:   moduleLogger(logger, "decoder"),
		metrics:  metrics,
		quit:     make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Frame, queueLen)
	}
	return p
}

func (p *DecodePool) Start() {
	for i := range p.queues {
		p.wg.Add(1)
		go p.work(p.queues[i])
	}
}

// Submit hands f to the worker owning its topic. When that worker is
// backed up the frame is dropped with ErrDecoderBusy; the caller is never
// blocked. After Close it returns ErrDecoderClosed.
func (p *DecodePool) Submit(f Frame) error {
	select {
	case <-p.quit:
		return ErrDecoderClosed
	default:
	}
	select {
	case p.queues[p.worker(f.Topic)] <- f:
		return nil
	default:
		p.metrics.dropped(DropQueueFull)
		return ErrDecoderBusy
	}
}

// Close stops the workers and waits for them. Queued frames are discarded.
func (p *DecodePool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

func (p *DecodePool) worker(topic string) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *DecodePool) work(queue chan Frame) {
	defer p.wg.Done()
	for {
		select {
		case f := <-queue:
			if rec, ok := p.decode(f); ok {
				p.emit(rec)
			}
		case <-p.quit:
			return
		}
	}
}

func (p *DecodePool) decode(f Frame) (Record, bool) {
	logger := p.logger.WithField("topic", f.Topic)
	kind := p.registry.Lookup(f.TypeName)
	if kind == msgs.KindUnknown {
		logger.Errorf("Dropping frame of unknown type %q", f.TypeName)
		p.metrics.dropped(DropUnknownType)
		return Record{}, false
	}
	m, err := p.registry.Decode(f.TypeName, f.Data)
	if err != nil {
		logger.Errorf("Failed to decode %s: %v", f.TypeName, err)
		if errors.Cause(err) == msgs.ErrUnsupportedPixelFormat {
			p.metrics.dropped(DropUnsupportedPixel)
		} else {
			p.metrics.dropped(DropMalformed)
		}
		return Record{}, false
	}
	p.metrics.FramesDecoded.WithLabelValues(kind.String()).Inc()
	return Record{
		Topic:        f.Topic,
		TypeName:     f.TypeName,
		Kind:         kind,
		Message:      m,
		Destinations: f.Destinations,
		Generation:   f.Generation,
	}, true
}
