package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// peer is one websocket client. Writes go through a bounded queue drained
// by writeLoop; enqueue never blocks.
type peer struct {
	conn     *websocket.Conn
	msgType  int
	clientID string
	send     chan []byte
	done     chan struct{}

	closeOnce sync.Once
}

func newPeer(conn *websocket.Conn, msgType int, clientID string) *peer {
	if clientID == "" {
		clientID = conn.RemoteAddr().String()
	}
	return &peer{
		conn:     conn,
		msgType:  msgType,
		clientID: clientID,
		send:     make(chan []byte, peerQueueLen),
		done:     make(chan struct{}),
	}
}

// enqueue queues a data frame. While the queue is full new frames are
// dropped.
func (p *peer) enqueue(data []byte) bool {
	if data == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// enqueueLatest queues data, evicting the oldest queued messages when the
// queue is full. Control clients get full snapshots, so only the newest
// one has to reach them.
func (p *peer) enqueueLatest(data []byte) bool {
	if data == nil {
		return false
	}
	for {
		select {
		case <-p.done:
			return false
		default:
		}
		select {
		case p.send <- data:
			return true
		default:
		}
		select {
		case <-p.send:
		default:
		}
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(p.msgType, data); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// readLoop returns when the client goes away. handle may be nil.
func (p *peer) readLoop(handle func(msg []byte)) {
	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if handle != nil {
			handle(msg)
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		p.conn.Close()
	})
}
