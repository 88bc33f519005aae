package msgs

import (
	"google.golang.org/protobuf/encoding/protowire"
)

type BoundingBox struct {
	Color Color3u
	Box   Rectf
	Label string
	Score float32
}

func (m *BoundingBox) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, uint32(m.Color))
	b = appendMessage(b, 2, &m.Box)
	b = appendString(b, 3, m.Label)
	b = appendFloat32(b, 4, m.Score)
	return b
}

func (m *BoundingBox) Unmarshal(data []byte) error {
	*m = BoundingBox{}
	return walk(data, "BoundingBox", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint32(typ, b, (*uint32)(&m.Color))
		case 2:
			return consumeMessage(typ, b, &m.Box)
		case 3:
			return consumeString(typ, b, &m.Label)
		case 4:
			return consumeFloat32(typ, b, &m.Score)
		}
		return 0, nil
	})
}

type ImageWithBoundingBoxes struct {
	Image         Image
	BoundingBoxes []BoundingBox
	Timestamp     int64
}

func (m *ImageWithBoundingBoxes) Kind() Kind { return KindImageWithBoundingBoxes }

func (m *ImageWithBoundingBoxes) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Image)
	for i := range m.BoundingBoxes {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.BoundingBoxes[i].Marshal())
	}
	b = appendInt64(b, 3, m.Timestamp)
	return b
}

func (m *ImageWithBoundingBoxes) Unmarshal(data []byte) error {
	*m = ImageWithBoundingBoxes{}
	return walk(data, "ImageWithBoundingBoxes", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Image)
		case 2:
			var box BoundingBox
			n, err := consumeMessage(typ, b, &box)
			if err == nil {
				m.BoundingBoxes = append(m.BoundingBoxes, box)
			}
			return n, err
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

func (m *ImageWithBoundingBoxes) normalize() error {
	return m.Image.normalize()
}

type HumanBodyModel int32

const (
	HumanBodyModelBody25 HumanBodyModel = 0
	HumanBodyModelCOCO   HumanBodyModel = 1
	HumanBodyModelMPI    HumanBodyModel = 2
)

// HumanBody indexes a keypoint within the model, e.g. nose or left wrist.
type HumanBody int32

type HumanBodyPart struct {
	Body     HumanBody
	Position Pointf
	Score    float32
}

func (m *HumanBodyPart) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, int32(m.Body))
	b = appendMessage(b, 2, &m.Position)
	b = appendFloat32(b, 3, m.Score)
	return b
}

func (m *HumanBodyPart) Unmarshal(data []byte) error {
	*m = HumanBodyPart{}
	return walk(data, "HumanBodyPart", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, (*int32)(&m.Body))
		case 2:
			return consumeMessage(typ, b, &m.Position)
		case 3:
			return consumeFloat32(typ, b, &m.Score)
		}
		return 0, nil
	})
}

type Human struct {
	Parts []HumanBodyPart
}

func (m *Human) Marshal() []byte {
	var b []byte
	for i := range m.Parts {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Parts[i].Marshal())
	}
	return b
}

func (m *Human) Unmarshal(data []byte) error {
	*m = Human{}
	return walk(data, "Human", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		var part HumanBodyPart
		n, err := consumeMessage(typ, b, &part)
		if err == nil {
			m.Parts = append(m.Parts, part)
		}
		return n, err
	})
}

type ImageWithHumans struct {
	Image     Image
	Model     HumanBodyModel
	Humans    []Human
	Timestamp int64
}

func (m *ImageWithHumans) Kind() Kind { return KindImageWithHumans }

func (m *ImageWithHumans) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Image)
	b = appendInt32(b, 2, int32(m.Model))
	for i := range m.Humans {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Humans[i].Marshal())
	}
	b = appendInt64(b, 4, m.Timestamp)
	return b
}

func (m *ImageWithHumans) Unmarshal(data []byte) error {
	*m = ImageWithHumans{}
	return walk(data, "ImageWithHumans", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Image)
		case 2:
			return consumeInt32(typ, b, (*int32)(&m.Model))
		case 3:
			var human Human
			n, err := consumeMessage(typ, b, &human)
			if err == nil {
				m.Humans = append(m.Humans, human)
			}
			return n, err
		case 4:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

func (m *ImageWithHumans) normalize() error {
	return m.Image.normalize()
}
