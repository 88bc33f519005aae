package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/edwinhayes/rosviz/viz"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrTopicExists  = errors.New("topic already published")
	ErrUnknownTopic = errors.New("unknown topic")
	ErrClosed       = errors.New("relay closed")
)

// peerQueueLen bounds the frames waiting for one slow peer. Newer frames
// are dropped while it is full.
const peerQueueLen = 16

type Options struct {
	// Host advertised in topic endpoints. Empty means determineHost.
	Host   string
	Logger *logrus.Entry
}

// Server is a development relay. Its HTTP handler is the control channel
// that publishes the topic directory; every topic gets its own websocket
// listener, which is the endpoint advertised for it.
type Server struct {
	host     string
	listenIP string
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	mu       sync.Mutex
	topics   map[string]*topic
	controls map[*peer]struct{}
	closed   bool
}

type topic struct {
	name     string
	typeName string
	endpoint viz.Endpoint
	server   *http.Server
	peers    map[*peer]struct{}
}

func NewServer(opts Options) *Server {
	host := opts.Host
	var localOnly bool
	if host == "" {
		host, localOnly = determineHost()
	} else {
		localOnly = host == "localhost" || isLoopbackIP(host)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(viz.DefaultLogger())
	}
	return &Server{
		host:     host,
		listenIP: listenIP(host, localOnly),
		logger:   logger.WithField("module", "relay"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		topics:   make(map[string]*topic),
		controls: make(map[*peer]struct{}),
	}
}

// ServeHTTP accepts a control channel client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Failed to upgrade control channel: %v", err)
		return
	}
	p := newPeer(conn, websocket.TextMessage, r.Header.Get(viz.ClientIDHeader))
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.close()
		return
	}
	s.controls[p] = struct{}{}
	s.mu.Unlock()
	s.logger.Debugf("Control client %s connected", p.clientID)

	go p.writeLoop()
	p.readLoop(func(msg []byte) {
		typ, _ := jsonparser.GetString(msg, "type")
		if typ != viz.TopicInfoMessage {
			s.logger.Debugf("Ignoring control message %q", typ)
			return
		}
		s.mu.Lock()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		p.enqueueLatest(snapshot)
	})

	s.mu.Lock()
	delete(s.controls, p)
	s.mu.Unlock()
	p.close()
	s.logger.Debugf("Control client %s disconnected", p.clientID)
}

// AddTopic starts publishing topic and announces it to control clients.
func (s *Server) AddTopic(name, typeName string) (viz.Endpoint, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(s.listenIP, "0"))
	if err != nil {
		return viz.Endpoint{}, errors.Wrapf(err, "listen for %s", name)
	}
	_, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	t := &topic{
		name:     name,
		typeName: typeName,
		endpoint: viz.Endpoint{Protocol: viz.ChannelTypeWS, Address: s.host, Port: port},
		peers:    make(map[*peer]struct{}),
	}
	t.server = &http.Server{Handler: s.dataHandler(t)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return viz.Endpoint{}, ErrClosed
	}
	if _, ok := s.topics[name]; ok {
		s.mu.Unlock()
		listener.Close()
		return viz.Endpoint{}, ErrTopicExists
	}
	s.topics[name] = t
	s.broadcastLocked()
	s.mu.Unlock()

	go t.server.Serve(listener)
	s.logger.WithField("topic", name).Infof("Publishing %s at %s", typeName, t.endpoint)
	return t.endpoint, nil
}

// RemoveTopic withdraws topic from the directory and disconnects its
// subscribers.
func (s *Server) RemoveTopic(name string) error {
	s.mu.Lock()
	t, ok := s.topics[name]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownTopic
	}
	delete(s.topics, name)
	s.broadcastLocked()
	peers := t.peerList()
	t.peers = nil
	s.mu.Unlock()

	s.shutdownTopic(t, peers)
	s.logger.WithField("topic", name).Info("Topic removed")
	return nil
}

// Publish queues frame for every subscriber of topic and returns how
// many accepted it.
func (s *Server) Publish(name string, frame []byte) (int, error) {
	s.mu.Lock()
	t, ok := s.topics[name]
	if !ok {
		s.mu.Unlock()
		return 0, ErrUnknownTopic
	}
	peers := t.peerList()
	s.mu.Unlock()

	n := 0
	for _, p := range peers {
		if p.enqueue(frame) {
			n++
		}
	}
	return n, nil
}

// Subscribers returns the number of data clients of topic.
func (s *Server) Subscribers(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.topics[name]; ok {
		return len(t.peers)
	}
	return 0
}

// Clients returns the client ids of the connected control clients.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.controls))
	for p := range s.controls {
		ids = append(ids, p.clientID)
	}
	sort.Strings(ids)
	return ids
}

// Topics returns the published topics sorted by name.
func (s *Server) Topics() []viz.TopicDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]viz.TopicDescriptor, 0, len(s.topics))
	for _, t := range s.sortedLocked() {
		result = append(result, viz.TopicDescriptor{
			Topic:     t.name,
			TypeName:  t.typeName,
			Endpoints: []viz.Endpoint{t.endpoint},
			Liveness:  viz.LivenessRegistered,
		})
	}
	return result
}

// Close stops every topic and disconnects all clients.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	topics := s.topics
	s.topics = make(map[string]*topic)
	controls := s.controls
	s.controls = make(map[*peer]struct{})
	type pending struct {
		t     *topic
		peers []*peer
	}
	var stops []pending
	for _, t := range topics {
		stops = append(stops, pending{t, t.peerList()})
		t.peers = nil
	}
	s.mu.Unlock()

	for _, stop := range stops {
		s.shutdownTopic(stop.t, stop.peers)
	}
	for p := range controls {
		p.close()
	}
}

func (s *Server) dataHandler(t *topic) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.WithField("topic", t.name).Warnf("Failed to upgrade data channel: %v", err)
			return
		}
		p := newPeer(conn, websocket.BinaryMessage, r.Header.Get(viz.ClientIDHeader))
		s.mu.Lock()
		if t.peers == nil {
			s.mu.Unlock()
			p.close()
			return
		}
		t.peers[p] = struct{}{}
		s.mu.Unlock()
		s.logger.WithField("topic", t.name).Debugf("Subscriber %s connected", p.clientID)

		go p.writeLoop()
		p.readLoop(nil)

		s.mu.Lock()
		if t.peers != nil {
			delete(t.peers, p)
		}
		s.mu.Unlock()
		p.close()
	})
}

func (s *Server) shutdownTopic(t *topic, peers []*peer) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	t.server.Shutdown(ctx)
	for _, p := range peers {
		p.close()
	}
}

func (t *topic) peerList() []*peer {
	peers := make([]*peer, 0, len(t.peers))
	for p := range t.peers {
		peers = append(peers, p)
	}
	return peers
}

func (s *Server) sortedLocked() []*topic {
	topics := make([]*topic, 0, len(s.topics))
	for _, t := range s.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].name < topics[j].name })
	return topics
}

func (s *Server) broadcastLocked() {
	snapshot := s.snapshotLocked()
	for p := range s.controls {
		p.enqueueLatest(snapshot)
	}
}

type ipEndpoint struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type channelDef struct {
	Type       string     `json:"type"`
	IPEndpoint ipEndpoint `json:"ipEndpoint"`
}

type topicSource struct {
	ChannelDefs []channelDef `json:"channelDefs"`
}

type topicInfo struct {
	Topic       string      `json:"topic"`
	TypeName    string      `json:"typeName"`
	Status      string      `json:"status"`
	TopicSource topicSource `json:"topicSource"`
}

type topicInfoMessage struct {
	Type string      `json:"type"`
	Data []topicInfo `json:"data"`
}

// snapshotLocked encodes the directory. Only registered topics are
// listed, as the console expects full snapshots.
func (s *Server) snapshotLocked() []byte {
	msg := topicInfoMessage{Type: viz.TopicInfoMessage, Data: []topicInfo{}}
	for _, t := range s.sortedLocked() {
		msg.Data = append(msg.Data, topicInfo{
			Topic:    t.name,
			TypeName: t.typeName,
			Status:   viz.LivenessRegistered.String(),
			TopicSource: topicSource{ChannelDefs: []channelDef{{
				Type:       t.endpoint.Protocol.String(),
				IPEndpoint: ipEndpoint{IP: t.endpoint.Address, Port: t.endpoint.Port},
			}}},
		})
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Errorf("Failed to encode topic info: %v", err)
		return nil
	}
	return data
}
