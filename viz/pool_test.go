package viz

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/edwinhayes/rosviz/msgs"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingSink struct {
	mu        sync.Mutex
	records   map[int][]*Record
	withdrawn map[int][]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		records:   make(map[int][]*Record),
		withdrawn: make(map[int][]string),
	}
}

func (s *recordingSink) OnRecord(id int, rec *Record) {
	s.mu.Lock()
	s.records[id] = append(s.records[id], rec)
	s.mu.Unlock()
}

func (s *recordingSink) OnWithdrawn(id int, topic string) {
	s.mu.Lock()
	s.withdrawn[id] = append(s.withdrawn[id], topic)
	s.mu.Unlock()
}

func (s *recordingSink) recordCount(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[id])
}

func (s *recordingSink) withdrawnFrom(id int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.withdrawn[id]...)
}

var (
	endpointX = Endpoint{Protocol: ChannelTypeWS, Address: "h", Port: 1}
	endpointY = Endpoint{Protocol: ChannelTypeWS, Address: "h", Port: 2}
)

func newTestPool(dialer Dialer, sink Sink, metrics *Metrics) *Pool {
	return NewPool(PoolOptions{
		Dialer:     dialer,
		Workers:    2,
		QueueLen:   16,
		RetryDelay: 5 * time.Millisecond,
		Sink:       sink,
		Logger:     testLogger(),
		Metrics:    metrics,
	})
}

func TestPoolSharesConnection(t *testing.T) {
	dialer := newFakeDialer()
	p := newTestPool(dialer, newRecordingSink(), nil)
	defer p.Close()

	if err := p.Subscribe(1, msgs.CameraFrameType, "cam/front", endpointX); err != nil {
		t.Fatal(err)
	}
	if err := p.Subscribe(2, msgs.CameraFrameType, "cam/front", endpointX); err != nil {
		t.Fatal(err)
	}
	tr := dialer.waitOpen(t, endpointX.URL())
	if n := dialer.dialCount(endpointX.URL()); n != 1 {
		t.Errorf("Expected 1 dial but %d", n)
	}
	if got := p.Consumers("cam/front"); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Unexpected consumers %v", got)
	}

	p.Unsubscribe(1, "cam/front")
	time.Sleep(10 * time.Millisecond)
	if tr.isClosed() {
		t.Error("Connection closed while a consumer remains")
	}
	p.Unsubscribe(2, "cam/front")
	eventually(t, "close", tr.isClosed)
	if topics := p.Topics(); len(topics) != 0 {
		t.Errorf("Expected no topics but %v", topics)
	}

	// unknown consumer and topic are ignored
	p.Unsubscribe(3, "cam/front")
	p.Unsubscribe(1, "nothing")
}

func TestPoolOneTopicPerType(t *testing.T) {
	dialer := newFakeDialer()
	p := newTestPool(dialer, newRecordingSink(), nil)
	defer p.Close()

	p.Subscribe(1, msgs.CameraFrameType, "cam/x", endpointX)
	p.Subscribe(1, msgs.ImuFrameType, "imu", endpointY)
	x := dialer.waitOpen(t, endpointX.URL())
	p.Subscribe(1, msgs.CameraFrameType, "cam/y", Endpoint{Protocol: ChannelTypeWS, Address: "h", Port: 3})

	eventually(t, "cam/x closed", x.isClosed)
	if got := p.Consumers("cam/x"); got != nil {
		t.Errorf("Expected no consumers of cam/x but %v", got)
	}
	want := []string{"cam/y", "imu"}
	got := p.Topics()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v but %v", want, got)
	}
}

func TestPoolDeliversToEveryConsumer(t *testing.T) {
	dialer := newFakeDialer()
	sink := newRecordingSink()
	metrics := NewMetrics(nil)
	p := newTestPool(dialer, sink, metrics)
	defer p.Close()

	p.Subscribe(1, msgs.PosefWithTimestampType, "pose", endpointX)
	p.Subscribe(2, msgs.PosefWithTimestampType, "pose", endpointX)
	tr := dialer.waitOpen(t, endpointX.URL())
	eventually(t, "open", func() bool { return testutil.ToFloat64(metrics.Connections) == 1 })

	tr.push([]byte{0xff})
	tr.push(poseFrame("pose", 42).Data)
	eventually(t, "records", func() bool {
		return sink.recordCount(1) == 1 && sink.recordCount(2) == 1
	})
	sink.mu.Lock()
	a, b := sink.records[1][0], sink.records[2][0]
	sink.mu.Unlock()
	if a.Message != b.Message {
		t.Error("Consumers should share the decoded message")
	}
	if ts := a.Message.(*msgs.PosefWithTimestamp).Timestamp; ts != 42 {
		t.Errorf("Expected timestamp 42 but %d", ts)
	}
	if v := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(DropMalformed)); v != 1 {
		t.Errorf("Expected 1 malformed drop but %v", v)
	}
	if v := testutil.ToFloat64(metrics.FramesReceived.WithLabelValues("pose")); v != 2 {
		t.Errorf("Expected 2 received frames but %v", v)
	}
}

func TestPoolUnknownTypeKeepsSubscription(t *testing.T) {
	dialer := newFakeDialer()
	sink := newRecordingSink()
	metrics := NewMetrics(nil)
	p := newTestPool(dialer, sink, metrics)
	defer p.Close()

	p.Subscribe(1, "felicia.SomethingElse", "other", endpointX)
	tr := dialer.waitOpen(t, endpointX.URL())
	tr.push([]byte{1, 2, 3})
	eventually(t, "drop", func() bool {
		return testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(DropUnknownType)) == 1
	})
	if tr.isClosed() {
		t.Error("Undecodable frames must not close the subscription")
	}
	if sink.recordCount(1) != 0 {
		t.Error("Expected no records")
	}
}

func TestPoolTopicWithdrawn(t *testing.T) {
	dialer := newFakeDialer()
	sink := newRecordingSink()
	p := newTestPool(dialer, sink, nil)
	defer p.Close()

	p.Subscribe(1, msgs.PosefWithTimestampType, "pose", endpointX)
	p.Subscribe(2, msgs.PosefWithTimestampType, "pose", endpointX)
	tr := dialer.waitOpen(t, endpointX.URL())

	p.OnTopicWithdrawn("pose")
	if !tr.isClosed() {
		t.Error("Withdrawal should close the transport")
	}
	for _, id := range []int{1, 2} {
		if got := sink.withdrawnFrom(id); len(got) != 1 || got[0] != "pose" {
			t.Errorf("Consumer %d: expected withdrawal of pose but %v", id, got)
		}
	}

	tr.frames <- poseFrame("pose", 1).Data
	time.Sleep(20 * time.Millisecond)
	if sink.recordCount(1)+sink.recordCount(2) != 0 {
		t.Error("Late frame delivered after withdrawal")
	}
	p.OnTopicWithdrawn("pose")
	if len(sink.withdrawnFrom(1)) != 1 {
		t.Error("Second withdrawal should be a no-op")
	}
}

func TestPoolStaleRecordsAreDropped(t *testing.T) {
	dialer := newFakeDialer()
	sink := newRecordingSink()
	metrics := NewMetrics(nil)
	p := newTestPool(dialer, sink, metrics)
	defer p.Close()

	p.Subscribe(1, msgs.PosefWithTimestampType, "pose", endpointX)
	p.mu.Lock()
	old := p.subs["pose"].generation
	p.mu.Unlock()
	p.OnTopicWithdrawn("pose")
	p.Subscribe(1, msgs.PosefWithTimestampType, "pose", endpointX)

	p.deliver(Record{Topic: "pose", Destinations: []int{1}, Generation: old})
	if sink.recordCount(1) != 0 {
		t.Error("Record of an old generation was delivered")
	}
	if v := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(DropStale)); v != 1 {
		t.Errorf("Expected 1 stale drop but %v", v)
	}

	p.mu.Lock()
	cur := p.subs["pose"].generation
	p.mu.Unlock()
	p.deliver(Record{Topic: "pose", Destinations: []int{1, 5}, Generation: cur})
	if sink.recordCount(1) != 1 || sink.recordCount(5) != 0 {
		t.Error("Record should reach only live consumers")
	}
}

func TestPoolUnsubscribeAll(t *testing.T) {
	dialer := newFakeDialer()
	p := newTestPool(dialer, newRecordingSink(), nil)
	defer p.Close()

	p.Subscribe(1, msgs.CameraFrameType, "cam", endpointX)
	p.Subscribe(1, msgs.ImuFrameType, "imu", endpointY)
	p.Subscribe(2, msgs.ImuFrameType, "imu", endpointY)

	got := p.UnsubscribeAll(1)
	if len(got) != 2 || got[0] != "cam" || got[1] != "imu" {
		t.Errorf("Unexpected released topics %v", got)
	}
	if topics := p.Topics(); len(topics) != 1 || topics[0] != "imu" {
		t.Errorf("Expected imu to survive but %v", topics)
	}
	if got := p.UnsubscribeAll(7); len(got) != 0 {
		t.Errorf("Unknown consumer released %v", got)
	}
}

func TestPoolClosed(t *testing.T) {
	dialer := newFakeDialer()
	p := newTestPool(dialer, newRecordingSink(), nil)
	p.Subscribe(1, msgs.CameraFrameType, "cam", endpointX)
	tr := dialer.waitOpen(t, endpointX.URL())
	p.Close()
	p.Close()
	eventually(t, "close", tr.isClosed)
	if err := p.Subscribe(1, msgs.CameraFrameType, "cam", endpointX); err != ErrPoolClosed {
		t.Errorf("Expected ErrPoolClosed but %v", err)
	}
}

func TestPoolAtMostOneConnectionPerTopic(t *testing.T) {
	dialer := newFakeDialer()
	p := newTestPool(dialer, newRecordingSink(), nil)
	defer p.Close()

	topics := []string{"a", "b", "c"}
	endpoints := map[string]Endpoint{}
	for i, topic := range topics {
		endpoints[topic] = Endpoint{Protocol: ChannelTypeWS, Address: "h", Port: 10 + i}
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		id := rng.Intn(4)
		topic := topics[rng.Intn(len(topics))]
		switch rng.Intn(4) {
		case 0, 1:
			p.Subscribe(id, "type/"+topic, topic, endpoints[topic])
		case 2:
			p.Unsubscribe(id, topic)
		case 3:
			p.UnsubscribeAll(id)
		}
		for _, topic := range topics {
			eventually(t, "one connection for "+topic, func() bool {
				return len(dialer.open(endpoints[topic].URL())) <= 1
			})
		}
	}

	for _, topic := range p.Topics() {
		if len(p.Consumers(topic)) == 0 {
			t.Errorf("%s is subscribed without consumers", topic)
		}
	}
}
