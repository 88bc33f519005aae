package msgs

import (
	"google.golang.org/protobuf/encoding/protowire"
)

type Sizei struct {
	Width  int32
	Height int32
}

func (m *Sizei) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Width)
	b = appendInt32(b, 2, m.Height)
	return b
}

func (m *Sizei) Unmarshal(data []byte) error {
	*m = Sizei{}
	return walk(data, "Sizei", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &m.Width)
		case 2:
			return consumeInt32(typ, b, &m.Height)
		}
		return 0, nil
	})
}

// Area is the number of pixels described by the size.
func (m Sizei) Area() int64 {
	if m.Width <= 0 || m.Height <= 0 {
		return 0
	}
	return int64(m.Width) * int64(m.Height)
}

type Pointf struct {
	X float32
	Y float32
}

func (m *Pointf) Marshal() []byte {
	var b []byte
	b = appendFloat32(b, 1, m.X)
	b = appendFloat32(b, 2, m.Y)
	return b
}

func (m *Pointf) Unmarshal(data []byte) error {
	*m = Pointf{}
	return walk(data, "Pointf", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeFloat32(typ, b, &m.X)
		case 2:
			return consumeFloat32(typ, b, &m.Y)
		}
		return 0, nil
	})
}

type Vector3f struct {
	X float32
	Y float32
	Z float32
}

func (m *Vector3f) Marshal() []byte {
	var b []byte
	b = appendFloat32(b, 1, m.X)
	b = appendFloat32(b, 2, m.Y)
	b = appendFloat32(b, 3, m.Z)
	return b
}

func (m *Vector3f) Unmarshal(data []byte) error {
	*m = Vector3f{}
	return walk(data, "Vector3f", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeFloat32(typ, b, &m.X)
		case 2:
			return consumeFloat32(typ, b, &m.Y)
		case 3:
			return consumeFloat32(typ, b, &m.Z)
		}
		return 0, nil
	})
}

type Quaternionf struct {
	W float32
	X float32
	Y float32
	Z float32
}

func (m *Quaternionf) Marshal() []byte {
	var b []byte
	b = appendFloat32(b, 1, m.W)
	b = appendFloat32(b, 2, m.X)
	b = appendFloat32(b, 3, m.Y)
	b = appendFloat32(b, 4, m.Z)
	return b
}

func (m *Quaternionf) Unmarshal(data []byte) error {
	*m = Quaternionf{}
	return walk(data, "Quaternionf", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeFloat32(typ, b, &m.W)
		case 2:
			return consumeFloat32(typ, b, &m.X)
		case 3:
			return consumeFloat32(typ, b, &m.Y)
		case 4:
			return consumeFloat32(typ, b, &m.Z)
		}
		return 0, nil
	})
}

// Posef is a 2D pose: a position plus a heading in radians.
type Posef struct {
	Position Pointf
	Theta    float32
}

func (m *Posef) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Position)
	b = appendFloat32(b, 2, m.Theta)
	return b
}

func (m *Posef) Unmarshal(data []byte) error {
	*m = Posef{}
	return walk(data, "Posef", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Position)
		case 2:
			return consumeFloat32(typ, b, &m.Theta)
		}
		return 0, nil
	})
}

type Rectf struct {
	TopLeft     Pointf
	BottomRight Pointf
}

func (m *Rectf) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.TopLeft)
	b = appendMessage(b, 2, &m.BottomRight)
	return b
}

func (m *Rectf) Unmarshal(data []byte) error {
	*m = Rectf{}
	return walk(data, "Rectf", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.TopLeft)
		case 2:
			return consumeMessage(typ, b, &m.BottomRight)
		}
		return 0, nil
	})
}

// Color3u packs an RGB color as 0x00RRGGBB.
type Color3u uint32

func (c Color3u) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}
