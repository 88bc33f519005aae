package viz

import (
	"fmt"
	"net"
	"strconv"
)

// ChannelType is a transport kind a publisher offers. Values are bit flags
// so a topic source can advertise several at once.
type ChannelType uint32

const (
	ChannelTypeTCP ChannelType = 1 << iota
	ChannelTypeUDP
	ChannelTypeWS
	ChannelTypeUDS
	ChannelTypeSHM
)

var channelTypeNames = map[ChannelType]string{
	ChannelTypeTCP: "CHANNEL_TYPE_TCP",
	ChannelTypeUDP: "CHANNEL_TYPE_UDP",
	ChannelTypeWS:  "CHANNEL_TYPE_WS",
	ChannelTypeUDS: "CHANNEL_TYPE_UDS",
	ChannelTypeSHM: "CHANNEL_TYPE_SHM",
}

func (c ChannelType) String() string {
	if name, ok := channelTypeNames[c]; ok {
		return name
	}
	return "CHANNEL_TYPE_NONE"
}

// Endpoint is one transport channel of a topic.
type Endpoint struct {
	Protocol ChannelType
	Address  string
	Port     int
}

// URL returns the address a Dialer connects to. Only websocket endpoints
// have one.
func (e Endpoint) URL() string {
	if e.Protocol != ChannelTypeWS || e.Address == "" {
		return ""
	}
	return "ws://" + net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s %s", e.Protocol, net.JoinHostPort(e.Address, strconv.Itoa(e.Port)))
}

type Liveness int

const (
	// LivenessUnknown marks topics the console lost track of while the
	// directory was unreachable.
	LivenessUnknown Liveness = iota
	LivenessRegistered
	LivenessUnregistered
)

func (l Liveness) String() string {
	switch l {
	case LivenessRegistered:
		return "REGISTERED"
	case LivenessUnregistered:
		return "UNREGISTERED"
	}
	return "UNKNOWN"
}

// TopicDescriptor is one entry of the topic directory.
type TopicDescriptor struct {
	Topic     string
	TypeName  string
	Endpoints []Endpoint
	Liveness  Liveness
}

// WSEndpoint returns the first websocket channel of the topic.
func (d TopicDescriptor) WSEndpoint() (Endpoint, bool) {
	for _, e := range d.Endpoints {
		if e.Protocol == ChannelTypeWS {
			return e, true
		}
	}
	return Endpoint{}, false
}

// HasWSChannel reports whether the console can subscribe to the topic.
func (d TopicDescriptor) HasWSChannel() bool {
	_, ok := d.WSEndpoint()
	return ok
}

// Usable reports whether the topic is live and reachable over websocket.
func (d TopicDescriptor) Usable() bool {
	return d.Liveness == LivenessRegistered && d.HasWSChannel()
}

// sameRoute reports whether subscriptions made against d remain valid
// for other.
func (d TopicDescriptor) sameRoute(other TopicDescriptor) bool {
	if d.TypeName != other.TypeName {
		return false
	}
	a, _ := d.WSEndpoint()
	b, _ := other.WSEndpoint()
	return a == b
}
