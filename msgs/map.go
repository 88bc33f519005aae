package msgs

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

type ElementType uint32

const (
	ElementTypeCustom ElementType = iota
	ElementType8U
	ElementType8S
	ElementType16U
	ElementType16S
	ElementType32U
	ElementType32S
	ElementType64U
	ElementType64S
	ElementType32F
	ElementType64F
)

type ChannelType uint32

const (
	ChannelTypeCustom ChannelType = iota
	ChannelTypeC1
	ChannelTypeC2
	ChannelTypeC3
	ChannelTypeC4
)

// DataType packs an element type in the high 16 bits and a channel type in
// the low 16 bits.
func DataType(e ElementType, c ChannelType) uint32 {
	return uint32(e)<<16 | uint32(c)&0xffff
}

// DataMessage is a typed array. Each element has ChannelSize components of
// Element1Size bytes.
type DataMessage struct {
	Type uint32
	Data []byte
}

func (m *DataMessage) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.Type)
	b = appendBytes(b, 2, m.Data)
	return b
}

func (m *DataMessage) Unmarshal(data []byte) error {
	*m = DataMessage{}
	return walk(data, "DataMessage", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32(typ, b, &m.Type)
		case 2:
			return consumeBytes(typ, b, &m.Data)
		}
		return 0, nil
	})
}

func (m *DataMessage) ElementType() ElementType {
	return ElementType(m.Type >> 16 & 0xffff)
}

func (m *DataMessage) ChannelType() ChannelType {
	return ChannelType(m.Type & 0xffff)
}

// Element1Size is the size in bytes of one component.
func (m *DataMessage) Element1Size() (int, error) {
	switch m.ElementType() {
	case ElementType8U, ElementType8S, ElementTypeCustom:
		return 1, nil
	case ElementType16U, ElementType16S:
		return 2, nil
	case ElementType32U, ElementType32S, ElementType32F:
		return 4, nil
	case ElementType64U, ElementType64S, ElementType64F:
		return 8, nil
	}
	return 0, errors.Wrapf(ErrMalformed, "element type %d", m.ElementType())
}

// ChannelSize is the number of components per element.
func (m *DataMessage) ChannelSize() (int, error) {
	switch c := m.ChannelType(); c {
	case ChannelTypeCustom:
		return 1, nil
	case ChannelTypeC1, ChannelTypeC2, ChannelTypeC3, ChannelTypeC4:
		return int(c), nil
	}
	return 0, errors.Wrapf(ErrMalformed, "channel type %d", m.ChannelType())
}

func (m *DataMessage) ElementSize() (int, error) {
	e, err := m.Element1Size()
	if err != nil {
		return 0, err
	}
	c, err := m.ChannelSize()
	if err != nil {
		return 0, err
	}
	return e * c, nil
}

// Len returns the number of complete elements in Data.
func (m *DataMessage) Len() (int, error) {
	size, err := m.ElementSize()
	if err != nil {
		return 0, err
	}
	return len(m.Data) / size, nil
}

type PointcloudFrame struct {
	Points    DataMessage
	Colors    DataMessage
	Timestamp int64
}

func (m *PointcloudFrame) Kind() Kind { return KindPointcloudFrame }

func (m *PointcloudFrame) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Points)
	b = appendMessage(b, 2, &m.Colors)
	b = appendInt64(b, 3, m.Timestamp)
	return b
}

func (m *PointcloudFrame) Unmarshal(data []byte) error {
	*m = PointcloudFrame{}
	return walk(data, "PointcloudFrame", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Points)
		case 2:
			return consumeMessage(typ, b, &m.Colors)
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// NumPoints is the number of points in the cloud. Points must be 2 or 3
// channel elements.
func (m *PointcloudFrame) NumPoints() (int, error) {
	c, err := m.Points.ChannelSize()
	if err != nil {
		return 0, err
	}
	if c != 2 && c != 3 {
		return 0, errors.Wrapf(ErrMalformed, "point channel size %d", c)
	}
	return m.Points.Len()
}

// OccupancyGridMap holds one byte per cell, row major. Resolution is the
// cell edge length in meters and Origin the world position of cell (0, 0).
type OccupancyGridMap struct {
	Size       Sizei
	Resolution float32
	Origin     Pointf
	Data       []byte
	Timestamp  int64
}

func (m *OccupancyGridMap) Kind() Kind { return KindOccupancyGridMap }

func (m *OccupancyGridMap) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Size)
	b = appendFloat32(b, 2, m.Resolution)
	b = appendMessage(b, 3, &m.Origin)
	b = appendBytes(b, 4, m.Data)
	b = appendInt64(b, 5, m.Timestamp)
	return b
}

func (m *OccupancyGridMap) Unmarshal(data []byte) error {
	*m = OccupancyGridMap{}
	return walk(data, "OccupancyGridMap", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Size)
		case 2:
			return consumeFloat32(typ, b, &m.Resolution)
		case 3:
			return consumeMessage(typ, b, &m.Origin)
		case 4:
			return consumeBytes(typ, b, &m.Data)
		case 5:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

type PosefWithTimestamp struct {
	Pose      Posef
	Timestamp int64
}

func (m *PosefWithTimestamp) Kind() Kind { return KindPosefWithTimestamp }

func (m *PosefWithTimestamp) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Pose)
	b = appendInt64(b, 2, m.Timestamp)
	return b
}

func (m *PosefWithTimestamp) Unmarshal(data []byte) error {
	*m = PosefWithTimestamp{}
	return walk(data, "PosefWithTimestamp", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Pose)
		case 2:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}
