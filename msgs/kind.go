package msgs

import (
	"sort"
)

// Kind identifies one of the message types the console knows how to decode.
type Kind int

const (
	KindUnknown Kind = iota
	KindCameraFrame
	KindDepthCameraFrame
	KindImageWithBoundingBoxes
	KindImageWithHumans
	KindImuFrame
	KindLidarFrame
	KindPointcloudFrame
	KindOccupancyGridMap
	KindPosefWithTimestamp
)

// Type names as published by the framework.
const (
	CameraFrameType            = "felicia.CameraFrameMessage"
	DepthCameraFrameType       = "felicia.DepthCameraFrameMessage"
	ImageWithBoundingBoxesType = "felicia.ImageWithBoundingBoxesMessage"
	ImageWithHumansType        = "felicia.ImageWithHumansMessage"
	ImuFrameType               = "felicia.ImuFrameMessage"
	LidarFrameType             = "felicia.LidarFrameMessage"
	PointcloudFrameType        = "felicia.PointcloudFrameMessage"
	OccupancyGridMapType       = "felicia.OccupancyGridMapMessage"
	PosefWithTimestampType     = "felicia.PosefWithTimestampMessage"

	// TopicInfoType tags control channel traffic. It never reaches the
	// decode workers.
	TopicInfoType = "felicia.TopicInfo"
)

var kindNames = map[Kind]string{
	KindCameraFrame:            CameraFrameType,
	KindDepthCameraFrame:       DepthCameraFrameType,
	KindImageWithBoundingBoxes: ImageWithBoundingBoxesType,
	KindImageWithHumans:        ImageWithHumansType,
	KindImuFrame:               ImuFrameType,
	KindLidarFrame:             LidarFrameType,
	KindPointcloudFrame:        PointcloudFrameType,
	KindOccupancyGridMap:       OccupancyGridMapType,
	KindPosefWithTimestamp:     PosefWithTimestampType,
}

// String returns the wire type name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsImage reports whether records of this kind carry a color image that
// is normalized to BGRA before delivery.
func (k Kind) IsImage() bool {
	switch k {
	case KindCameraFrame, KindImageWithBoundingBoxes, KindImageWithHumans:
		return true
	}
	return false
}

type registryEntry struct {
	kind       Kind
	newMessage func() Message
}

// Registry maps type names to message kinds. It is built once and only
// read afterwards, so a single Registry may be shared by every decode
// worker.
type Registry struct {
	entries map[string]registryEntry
}

// NewRegistry returns a registry holding every supported kind.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]registryEntry)}
	r.add(KindCameraFrame, func() Message { return new(CameraFrame) })
	r.add(KindDepthCameraFrame, func() Message { return new(DepthCameraFrame) })
	r.add(KindImageWithBoundingBoxes, func() Message { return new(ImageWithBoundingBoxes) })
	r.add(KindImageWithHumans, func() Message { return new(ImageWithHumans) })
	r.add(KindImuFrame, func() Message { return new(ImuFrame) })
	r.add(KindLidarFrame, func() Message { return new(LidarFrame) })
	r.add(KindPointcloudFrame, func() Message { return new(PointcloudFrame) })
	r.add(KindOccupancyGridMap, func() Message { return new(OccupancyGridMap) })
	r.add(KindPosefWithTimestamp, func() Message { return new(PosefWithTimestamp) })
	return r
}

func (r *Registry) add(kind Kind, newMessage func() Message) {
	r.entries[kind.String()] = registryEntry{kind: kind, newMessage: newMessage}
}

// Lookup returns the kind registered for typeName, or KindUnknown.
func (r *Registry) Lookup(typeName string) Kind {
	if e, ok := r.entries[typeName]; ok {
		return e.kind
	}
	return KindUnknown
}

// TypeNames lists the registered type names in sorted order.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode unmarshals data as typeName. Byte fields of the result alias
// data, so the caller hands ownership of the buffer to the returned
// message. Image kinds are normalized to BGRA.
func (r *Registry) Decode(typeName string, data []byte) (Message, error) {
	e, ok := r.entries[typeName]
	if !ok {
		return nil, &UnknownTypeError{TypeName: typeName}
	}
	m := e.newMessage()
	if err := m.Unmarshal(data); err != nil {
		return nil, err
	}
	if n, ok := m.(normalizer); ok {
		if err := n.normalize(); err != nil {
			return nil, err
		}
	}
	return m, nil
}
