package viz

import (
	"github.com/buger/jsonparser"
	"github.com/edwinhayes/rosviz/msgs"
	"github.com/pkg/errors"
)

// TopicInfoMessage tags control channel messages in both directions.
const TopicInfoMessage = "TOPIC_INFO"

// TopicInfoRequest asks the directory for a snapshot. It is sent once per
// control connection.
var TopicInfoRequest = []byte(`{"type":"` + TopicInfoMessage + `"}`)

// ParseTopicInfo parses a directory snapshot of the form
//
//	{"type": "TOPIC_INFO", "data": [TopicInfo, ...]}
//
// where every TopicInfo looks like
//
//	{"topic": "cam", "typeName": "felicia.CameraFrameMessage",
//	 "status": "REGISTERED",
//	 "topicSource": {"channelDefs": [
//	   {"type": "CHANNEL_TYPE_WS", "ipEndpoint": {"ip": "10.0.0.2", "port": 9000}}]}}
//
// Enum fields may be given by name or by number. A missing status means
// REGISTERED.
func ParseTopicInfo(data []byte) ([]TopicDescriptor, error) {
	typ, err := jsonparser.GetString(data, "type")
	if err != nil {
		return nil, errors.Wrap(err, "topic info: type")
	}
	if typ != TopicInfoMessage && typ != msgs.TopicInfoType {
		return nil, errors.Errorf("topic info: unexpected message type %q", typ)
	}
	value, dataType, _, err := jsonparser.Get(data, "data")
	if err != nil {
		return nil, errors.Wrap(err, "topic info: data")
	}
	if dataType != jsonparser.Array {
		return nil, errors.Errorf("topic info: data is %s, want array", dataType)
	}

	descs := []TopicDescriptor{}
	var itemErr error
	_, err = jsonparser.ArrayEach(value, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
		if itemErr != nil {
			return
		}
		d, err := parseTopicDescriptor(item)
		if err != nil {
			itemErr = err
			return
		}
		descs = append(descs, d)
	})
	if err != nil {
		return nil, errors.Wrap(err, "topic info: data")
	}
	if itemErr != nil {
		return nil, itemErr
	}
	return descs, nil
}

var livenessByName = map[string]int64{
	"REGISTERED":   0,
	"UNREGISTERED": 1,
}

var channelTypeByName = map[string]int64{
	"CHANNEL_TYPE_TCP": int64(ChannelTypeTCP),
	"CHANNEL_TYPE_UDP": int64(ChannelTypeUDP),
	"CHANNEL_TYPE_WS":  int64(ChannelTypeWS),
	"CHANNEL_TYPE_UDS": int64(ChannelTypeUDS),
	"CHANNEL_TYPE_SHM": int64(ChannelTypeSHM),
}

func parseTopicDescriptor(item []byte) (TopicDescriptor, error) {
	var d TopicDescriptor
	topic, err := jsonparser.GetString(item, "topic")
	if err != nil || topic == "" {
		return d, errors.New("topic info: entry without topic")
	}
	d.Topic = topic
	d.TypeName, _ = jsonparser.GetString(item, "typeName")

	status, err := getEnum(item, livenessByName, "status")
	switch {
	case err != nil:
		return d, errors.Wrapf(err, "topic info: %s status", topic)
	case status == 0:
		d.Liveness = LivenessRegistered
	case status == 1:
		d.Liveness = LivenessUnregistered
	default:
		d.Liveness = LivenessUnknown
	}

	defs, dataType, _, err := jsonparser.Get(item, "topicSource", "channelDefs")
	if dataType == jsonparser.NotExist {
		return d, nil
	}
	if err != nil || dataType != jsonparser.Array {
		return d, errors.Errorf("topic info: %s channelDefs is not an array", topic)
	}
	var defErr error
	_, err = jsonparser.ArrayEach(defs, func(def []byte, _ jsonparser.ValueType, _ int, _ error) {
		if defErr != nil {
			return
		}
		typ, err := getEnum(def, channelTypeByName, "type")
		if err != nil {
			defErr = errors.Wrapf(err, "topic info: %s channel type", topic)
			return
		}
		ip, _ := jsonparser.GetString(def, "ipEndpoint", "ip")
		port, _ := jsonparser.GetInt(def, "ipEndpoint", "port")
		d.Endpoints = append(d.Endpoints, Endpoint{
			Protocol: ChannelType(typ),
			Address:  ip,
			Port:     int(port),
		})
	})
	if err != nil {
		return d, errors.Wrapf(err, "topic info: %s channelDefs", topic)
	}
	return d, defErr
}

// getEnum reads a proto3 JSON enum. Missing fields yield 0.
func getEnum(data []byte, names map[string]int64, keys ...string) (int64, error) {
	value, dataType, _, err := jsonparser.Get(data, keys...)
	switch dataType {
	case jsonparser.NotExist, jsonparser.Null:
		return 0, nil
	case jsonparser.Number:
		return jsonparser.ParseInt(value)
	case jsonparser.String:
		name, err := jsonparser.ParseString(value)
		if err != nil {
			return 0, err
		}
		if v, ok := names[name]; ok {
			return v, nil
		}
		return 0, errors.Errorf("unknown enum value %q", name)
	}
	if err != nil {
		return 0, err
	}
	return 0, errors.Errorf("enum is %s", dataType)
}
