package msgs

import (
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

type ImuFrame struct {
	Orientation        Quaternionf
	AngularVelocity    Vector3f
	LinearAcceleration Vector3f
	Timestamp          int64
}

func (m *ImuFrame) Kind() Kind { return KindImuFrame }

func (m *ImuFrame) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Orientation)
	b = appendMessage(b, 2, &m.AngularVelocity)
	b = appendMessage(b, 3, &m.LinearAcceleration)
	b = appendInt64(b, 4, m.Timestamp)
	return b
}

func (m *ImuFrame) Unmarshal(data []byte) error {
	*m = ImuFrame{}
	return walk(data, "ImuFrame", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Orientation)
		case 2:
			return consumeMessage(typ, b, &m.AngularVelocity)
		case 3:
			return consumeMessage(typ, b, &m.LinearAcceleration)
		case 4:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// LidarFrame is one planar scan. Ranges and Intensities hold packed little
// endian float32 samples, one per beam.
type LidarFrame struct {
	AngleStart  float32
	AngleEnd    float32
	AngleDelta  float32
	TimeDelta   float32
	ScanTime    float32
	RangeMin    float32
	RangeMax    float32
	Ranges      []byte
	Intensities []byte
	Timestamp   int64
}

func (m *LidarFrame) Kind() Kind { return KindLidarFrame }

func (m *LidarFrame) Marshal() []byte {
	var b []byte
	b = appendFloat32(b, 1, m.AngleStart)
	b = appendFloat32(b, 2, m.AngleEnd)
	b = appendFloat32(b, 3, m.AngleDelta)
	b = appendFloat32(b, 4, m.TimeDelta)
	b = appendFloat32(b, 5, m.ScanTime)
	b = appendFloat32(b, 6, m.RangeMin)
	b = appendFloat32(b, 7, m.RangeMax)
	b = appendBytes(b, 8, m.Ranges)
	b = appendBytes(b, 9, m.Intensities)
	b = appendInt64(b, 10, m.Timestamp)
	return b
}

func (m *LidarFrame) Unmarshal(data []byte) error {
	*m = LidarFrame{}
	return walk(data, "LidarFrame", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeFloat32(typ, b, &m.AngleStart)
		case 2:
			return consumeFloat32(typ, b, &m.AngleEnd)
		case 3:
			return consumeFloat32(typ, b, &m.AngleDelta)
		case 4:
			return consumeFloat32(typ, b, &m.TimeDelta)
		case 5:
			return consumeFloat32(typ, b, &m.ScanTime)
		case 6:
			return consumeFloat32(typ, b, &m.RangeMin)
		case 7:
			return consumeFloat32(typ, b, &m.RangeMax)
		case 8:
			return consumeBytes(typ, b, &m.Ranges)
		case 9:
			return consumeBytes(typ, b, &m.Intensities)
		case 10:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// NumBeams is the number of complete range samples in the frame.
func (m *LidarFrame) NumBeams() int {
	return len(m.Ranges) / 4
}

// Range returns the i-th range sample.
func (m *LidarFrame) Range(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(m.Ranges[i*4:]))
}

// PackFloat32s encodes samples the way LidarFrame and PointcloudFrame
// carry them.
func PackFloat32s(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}
