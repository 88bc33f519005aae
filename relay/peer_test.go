package relay

import (
	"strconv"
	"testing"

	"github.com/gorilla/websocket"
)

func drain(p *peer) []string {
	var result []string
	for {
		select {
		case data := <-p.send:
			result = append(result, string(data))
		default:
			return result
		}
	}
}

func TestPeerEnqueueLatestKeepsNewest(t *testing.T) {
	p := newPeer(nil, websocket.TextMessage, "control")
	const n = peerQueueLen + 4
	for i := 0; i < n; i++ {
		if !p.enqueueLatest([]byte(strconv.Itoa(i))) {
			t.Fatalf("Snapshot %d refused", i)
		}
	}
	queued := drain(p)
	if len(queued) != peerQueueLen {
		t.Fatalf("Expected %d queued but %d", peerQueueLen, len(queued))
	}
	if queued[0] != "4" || queued[len(queued)-1] != strconv.Itoa(n-1) {
		t.Errorf("Expected oldest snapshots evicted, got %v", queued)
	}
	if p.enqueueLatest(nil) {
		t.Error("nil data should not be queued")
	}
}

func TestPeerEnqueueDropsNewFrames(t *testing.T) {
	p := newPeer(nil, websocket.BinaryMessage, "data")
	for i := 0; i < peerQueueLen; i++ {
		if !p.enqueue([]byte(strconv.Itoa(i))) {
			t.Fatalf("Frame %d refused", i)
		}
	}
	if p.enqueue([]byte("late")) {
		t.Error("Expected frame to be dropped while the queue is full")
	}
	queued := drain(p)
	if len(queued) != peerQueueLen || queued[0] != "0" {
		t.Errorf("Unexpected queue %v", queued)
	}
}
