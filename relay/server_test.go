package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edwinhayes/rosviz/msgs"
	"github.com/edwinhayes/rosviz/viz"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := viz.NewLogger()
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

func startRelay(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(Options{Host: "127.0.0.1", Logger: testLogger()})
	hs := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		hs.Close()
	})
	return s, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func spinUntil(t *testing.T, c *viz.Console, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		c.SpinOnce()
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestControlChannelSnapshot(t *testing.T) {
	s, url := startRelay(t)
	endpoint, err := s.AddTopic("imu", msgs.ImuFrameType)
	if err != nil {
		t.Fatal(err)
	}
	if endpoint.Address != "127.0.0.1" || endpoint.Port == 0 || endpoint.Protocol != viz.ChannelTypeWS {
		t.Errorf("Unexpected endpoint %v", endpoint)
	}
	if _, err := s.AddTopic("imu", msgs.ImuFrameType); err != ErrTopicExists {
		t.Errorf("Expected ErrTopicExists but %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, viz.TopicInfoRequest); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	descs, err := viz.ParseTopicInfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || !descs[0].Usable() || descs[0].TypeName != msgs.ImuFrameType {
		t.Fatalf("Unexpected snapshot %s", data)
	}
	if ws, _ := descs[0].WSEndpoint(); ws != endpoint {
		t.Errorf("Advertised %v but listening at %v", ws, endpoint)
	}

	// removal is pushed without a request
	if err := s.RemoveTopic("imu"); err != nil {
		t.Fatal(err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	descs, err = viz.ParseTopicInfo(data)
	if err != nil || len(descs) != 0 {
		t.Errorf("Expected an empty snapshot but %s (%v)", data, err)
	}
	if err := s.RemoveTopic("imu"); err != ErrUnknownTopic {
		t.Errorf("Expected ErrUnknownTopic but %v", err)
	}
	if _, err := s.Publish("imu", []byte{1}); err != ErrUnknownTopic {
		t.Errorf("Expected ErrUnknownTopic but %v", err)
	}
}

func TestConsoleThroughRelay(t *testing.T) {
	s, url := startRelay(t)
	s.AddTopic("cam/front", msgs.CameraFrameType)

	c := viz.NewConsole(viz.ConsoleOptions{
		DirectoryURL:        url,
		Dialer:              &viz.WebsocketDialer{ClientID: "console-test"},
		DataRetryDelay:      50 * time.Millisecond,
		DirectoryRetryDelay: 50 * time.Millisecond,
		Logger:              testLogger(),
	})
	c.Start()
	defer c.Shutdown()

	spinUntil(t, c, "topic announcement", func() bool {
		_, ok := c.Directory().Lookup("cam/front")
		return ok
	})
	if ids := s.Clients(); len(ids) != 1 || ids[0] != "console-test" {
		t.Errorf("Unexpected control clients %v", ids)
	}

	v1, v2 := c.AddView(), c.AddView()
	c.Subscribe(v1.ID(), msgs.CameraFrameType, "cam/front")
	c.Subscribe(v2.ID(), msgs.CameraFrameType, "cam/front")
	spinUntil(t, c, "data subscriber", func() bool { return s.Subscribers("cam/front") == 1 })

	// 2x1 RGB, converted to BGRA by the console
	frame := &msgs.CameraFrame{Data: []byte{10, 20, 30, 40, 50, 60}, Timestamp: 5}
	frame.CameraFormat.Size = msgs.Sizei{Width: 2, Height: 1}
	frame.CameraFormat.PixelFormat = msgs.PixelFormatRGB
	if n, err := s.Publish("cam/front", frame.Marshal()); err != nil || n != 1 {
		t.Fatalf("Publish reached %d subscribers: %v", n, err)
	}
	spinUntil(t, c, "records", func() bool {
		_, ok1 := v1.Latest(msgs.CameraFrameType)
		_, ok2 := v2.Latest(msgs.CameraFrameType)
		return ok1 && ok2
	})
	rec, _ := v1.Latest(msgs.CameraFrameType)
	got := rec.Message.(*msgs.CameraFrame)
	want := []byte{30, 20, 10, 255, 60, 50, 40, 255}
	if string(got.Data) != string(want) || !got.Converted || got.CameraFormat.PixelFormat != msgs.PixelFormatBGRA {
		t.Errorf("Unexpected frame %v %v %s", got.Data, got.Converted, got.CameraFormat.PixelFormat)
	}

	s.RemoveTopic("cam/front")
	spinUntil(t, c, "no data", func() bool {
		_, ok1 := v1.Latest(msgs.CameraFrameType)
		_, ok2 := v2.Latest(msgs.CameraFrameType)
		return !ok1 && !ok2
	})
	if topics := c.Pool().Topics(); len(topics) != 0 {
		t.Errorf("Pool kept %v", topics)
	}

	// the topic comes back on a new port
	s.AddTopic("cam/front", msgs.CameraFrameType)
	spinUntil(t, c, "resubscription", func() bool {
		return v1.Subscribed(msgs.CameraFrameType) && s.Subscribers("cam/front") == 1
	})
	frame.Timestamp = 6
	s.Publish("cam/front", frame.Marshal())
	spinUntil(t, c, "record after return", func() bool {
		rec, ok := v2.Latest(msgs.CameraFrameType)
		return ok && rec.Message.(*msgs.CameraFrame).Timestamp == 6
	})
}
