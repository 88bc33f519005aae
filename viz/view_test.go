package viz

import (
	"testing"

	"github.com/edwinhayes/rosviz/msgs"
)

func TestViewApply(t *testing.T) {
	v := newViewState(3)
	var updates []string
	v.OnUpdate(func(_ *ViewState, typeName string) { updates = append(updates, typeName) })

	rec := &Record{Topic: "cam/front", TypeName: msgs.CameraFrameType}
	if v.apply(rec) {
		t.Error("Record applied to an unbound view")
	}
	v.bind(msgs.CameraFrameType, "cam/front")
	if v.apply(rec) {
		t.Error("Record applied before the subscription exists")
	}
	if !v.setSubscribed(msgs.CameraFrameType, "cam/front") {
		t.Fatal("setSubscribed failed")
	}
	if v.apply(&Record{Topic: "cam/rear", TypeName: msgs.CameraFrameType}) {
		t.Error("Record of another topic applied")
	}
	if !v.apply(rec) {
		t.Fatal("Record not applied")
	}
	if got, ok := v.Latest(msgs.CameraFrameType); !ok || got != rec {
		t.Error("Latest does not return the applied record")
	}
	if len(updates) != 1 {
		t.Errorf("Expected 1 update but %v", updates)
	}
	if v.setSubscribed(msgs.CameraFrameType, "cam/rear") {
		t.Error("setSubscribed accepted a topic that is not bound")
	}
}

func TestViewWithdraw(t *testing.T) {
	v := newViewState(0)
	updates := 0
	v.OnUpdate(func(*ViewState, string) { updates++ })
	v.bind(msgs.CameraFrameType, "cam")
	v.bind(msgs.ImuFrameType, "imu")
	v.setSubscribed(msgs.CameraFrameType, "cam")
	v.setSubscribed(msgs.ImuFrameType, "imu")
	v.apply(&Record{Topic: "cam", TypeName: msgs.CameraFrameType})
	v.apply(&Record{Topic: "imu", TypeName: msgs.ImuFrameType})
	updates = 0

	v.withdraw("cam")
	if _, ok := v.Latest(msgs.CameraFrameType); ok {
		t.Error("Withdrawn topic still on display")
	}
	if _, ok := v.Latest(msgs.ImuFrameType); !ok {
		t.Error("Other topic lost its data")
	}
	if v.Subscribed(msgs.CameraFrameType) {
		t.Error("Withdrawn topic still subscribed")
	}
	if topic, ok := v.Topic(msgs.CameraFrameType); !ok || topic != "cam" {
		t.Error("Binding should survive withdrawal")
	}
	if updates != 1 {
		t.Errorf("Expected 1 update but %d", updates)
	}
	if p := v.pending("cam"); len(p) != 1 || p[0] != msgs.CameraFrameType {
		t.Errorf("Expected cam to be pending but %v", p)
	}

	// withdrawing again changes nothing
	v.withdraw("cam")
	if updates != 1 {
		t.Errorf("Expected no further update but %d", updates)
	}
}

func TestViewRebind(t *testing.T) {
	v := newViewState(0)
	v.bind(msgs.CameraFrameType, "a")
	v.setSubscribed(msgs.CameraFrameType, "a")
	v.apply(&Record{Topic: "a", TypeName: msgs.CameraFrameType})

	prev, cleared := v.bind(msgs.CameraFrameType, "a")
	if prev != "a" || cleared {
		t.Error("Binding the same topic should keep the display")
	}
	prev, cleared = v.bind(msgs.CameraFrameType, "b")
	if prev != "a" || !cleared {
		t.Errorf("Expected a cleared rebind from a but %q %v", prev, cleared)
	}
	if v.Subscribed(msgs.CameraFrameType) {
		t.Error("New binding should start unsubscribed")
	}

	topic, cleared := v.unbind(msgs.CameraFrameType)
	if topic != "b" || cleared {
		t.Errorf("Unexpected unbind result %q %v", topic, cleared)
	}
	if len(v.Topics()) != 0 {
		t.Error("Bindings left after unbind")
	}
}
