package viz

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type directoryEvent struct {
	kind     string
	topic    string
	liveness Liveness
}

type recordingListener struct {
	mu     sync.Mutex
	events []directoryEvent
}

func (l *recordingListener) TopicAvailable(d TopicDescriptor) {
	l.add(directoryEvent{"available", d.Topic, d.Liveness})
}

func (l *recordingListener) TopicWithdrawn(d TopicDescriptor) {
	l.add(directoryEvent{"withdrawn", d.Topic, d.Liveness})
}

func (l *recordingListener) DirectoryStatus(connected bool) {
	l.add(directoryEvent{kind: fmt.Sprintf("status %v", connected)})
}

func (l *recordingListener) add(e directoryEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// take returns and forgets the events seen so far.
func (l *recordingListener) take() []directoryEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := l.events
	l.events = nil
	return events
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func wsTopic(topic, typeName string, port int) TopicDescriptor {
	return TopicDescriptor{
		Topic:     topic,
		TypeName:  typeName,
		Endpoints: []Endpoint{{Protocol: ChannelTypeWS, Address: "h", Port: port}},
		Liveness:  LivenessRegistered,
	}
}

func topicInfoJSON(descs ...TopicDescriptor) []byte {
	items := make([]string, 0, len(descs))
	for _, d := range descs {
		items = append(items, fmt.Sprintf(
			`{"topic":%q,"typeName":%q,"status":%q,"topicSource":{"channelDefs":[{"type":"CHANNEL_TYPE_WS","ipEndpoint":{"ip":%q,"port":%d}}]}}`,
			d.Topic, d.TypeName, d.Liveness.String(), d.Endpoints[0].Address, d.Endpoints[0].Port))
	}
	return []byte(`{"type":"TOPIC_INFO","data":[` + strings.Join(items, ",") + `]}`)
}

func expectEvents(t *testing.T, got []directoryEvent, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %v but %v", want, got)
	}
	for i, e := range got {
		s := e.kind
		if e.topic != "" {
			s += " " + e.topic
		}
		if s != want[i] {
			t.Errorf("Event %d: expected %q but %q", i, want[i], s)
		}
	}
}

func TestDirectoryApplyDiff(t *testing.T) {
	l := &recordingListener{}
	d := NewDirectory(DirectoryOptions{URL: "ws://dir", Dialer: newFakeDialer(), Listener: l, Logger: testLogger()})

	d.apply([]TopicDescriptor{wsTopic("b", "T", 1), wsTopic("a", "T", 1)})
	expectEvents(t, l.take(), "available a", "available b")

	// same snapshot again reports nothing
	d.apply([]TopicDescriptor{wsTopic("a", "T", 1), wsTopic("b", "T", 1)})
	expectEvents(t, l.take())

	unregistered := wsTopic("c", "T", 1)
	unregistered.Liveness = LivenessUnregistered
	tcpOnly := TopicDescriptor{
		Topic:     "d",
		TypeName:  "T",
		Endpoints: []Endpoint{{Protocol: ChannelTypeTCP, Address: "h", Port: 1}},
		Liveness:  LivenessRegistered,
	}
	d.apply([]TopicDescriptor{wsTopic("a", "T", 2), wsTopic("e", "U", 1), unregistered, tcpOnly})
	expectEvents(t, l.take(), "withdrawn a", "withdrawn b", "available a", "available e")

	if _, ok := d.Lookup("c"); ok {
		t.Error("Unregistered topic should not be listed")
	}
	if _, ok := d.Lookup("d"); ok {
		t.Error("Topic without websocket channel should not be listed")
	}
	topics := d.Topics()
	if len(topics) != 2 || topics[0].Topic != "a" || topics[1].Topic != "e" {
		t.Errorf("Unexpected topics %v", topics)
	}
	if a, _ := d.Lookup("a"); a.Endpoints[0].Port != 2 {
		t.Errorf("Endpoint not updated: %v", a)
	}

	// a type change is a new topic as well
	d.apply([]TopicDescriptor{wsTopic("a", "V", 2), wsTopic("e", "U", 1)})
	expectEvents(t, l.take(), "withdrawn a", "available a")
}

func TestDirectoryControlChannel(t *testing.T) {
	dialer := newFakeDialer()
	l := &recordingListener{}
	metrics := NewMetrics(nil)
	d := NewDirectory(DirectoryOptions{
		URL:        "ws://dir",
		Dialer:     dialer,
		RetryDelay: 50 * time.Millisecond,
		Listener:   l,
		Logger:     testLogger(),
		Metrics:    metrics,
	})
	d.Start()
	defer d.Close()

	tr := dialer.waitOpen(t, "ws://dir")
	eventually(t, "topic info request", func() bool { return len(tr.writes()) == 1 })
	if got := string(tr.writes()[0]); got != string(TopicInfoRequest) {
		t.Errorf("Unexpected request %s", got)
	}
	eventually(t, "status", func() bool { return l.count() == 1 })
	expectEvents(t, l.take(), "status true")
	if !d.Connected() || testutil.ToFloat64(metrics.DirectoryConnected) != 1 {
		t.Error("Directory should report connected")
	}

	tr.push(topicInfoJSON(wsTopic("cam/front", "T", 1), wsTopic("imu", "U", 2)))
	tr.push([]byte(`{"type":"SOMETHING_ELSE"}`))
	eventually(t, "snapshot", func() bool { return l.count() == 2 })
	expectEvents(t, l.take(), "available cam/front", "available imu")

	tr.drop()
	eventually(t, "withdrawal", func() bool { return l.count() == 3 })
	events := l.take()
	expectEvents(t, events, "withdrawn cam/front", "withdrawn imu", "status false")
	if events[0].liveness != LivenessUnknown {
		t.Errorf("Expected unknown liveness but %s", events[0].liveness)
	}
	if len(d.Topics()) != 0 {
		t.Error("Catalog should be empty after a disconnect")
	}

	// the request is repeated on every new control connection
	tr = dialer.waitOpen(t, "ws://dir")
	eventually(t, "second request", func() bool { return len(tr.writes()) == 1 })
	tr.push(topicInfoJSON(wsTopic("imu", "U", 2)))
	eventually(t, "resnapshot", func() bool { return l.count() == 2 })
	expectEvents(t, l.take(), "status true", "available imu")
}
