package msgs

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

type PixelFormat int32

const (
	PixelFormatUnknown PixelFormat = 0
	PixelFormatI420    PixelFormat = 1
	PixelFormatYV12    PixelFormat = 2
	PixelFormatNV12    PixelFormat = 6
	PixelFormatNV21    PixelFormat = 7
	PixelFormatUYVY    PixelFormat = 8
	PixelFormatYUY2    PixelFormat = 9
	PixelFormatBGRA    PixelFormat = 10
	PixelFormatBGR     PixelFormat = 12
	PixelFormatBGRX    PixelFormat = 13
	PixelFormatMJPEG   PixelFormat = 14
	PixelFormatY8      PixelFormat = 25
	PixelFormatY16     PixelFormat = 26
	PixelFormatRGBA    PixelFormat = 27
	PixelFormatRGBX    PixelFormat = 28
	PixelFormatRGB     PixelFormat = 29
	PixelFormatARGB    PixelFormat = 30
	PixelFormatZ16     PixelFormat = 31
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatUnknown: "PIXEL_FORMAT_UNKNOWN",
	PixelFormatI420:    "PIXEL_FORMAT_I420",
	PixelFormatYV12:    "PIXEL_FORMAT_YV12",
	PixelFormatNV12:    "PIXEL_FORMAT_NV12",
	PixelFormatNV21:    "PIXEL_FORMAT_NV21",
	PixelFormatUYVY:    "PIXEL_FORMAT_UYVY",
	PixelFormatYUY2:    "PIXEL_FORMAT_YUY2",
	PixelFormatBGRA:    "PIXEL_FORMAT_BGRA",
	PixelFormatBGR:     "PIXEL_FORMAT_BGR",
	PixelFormatBGRX:    "PIXEL_FORMAT_BGRX",
	PixelFormatMJPEG:   "PIXEL_FORMAT_MJPEG",
	PixelFormatY8:      "PIXEL_FORMAT_Y8",
	PixelFormatY16:     "PIXEL_FORMAT_Y16",
	PixelFormatRGBA:    "PIXEL_FORMAT_RGBA",
	PixelFormatRGBX:    "PIXEL_FORMAT_RGBX",
	PixelFormatRGB:     "PIXEL_FORMAT_RGB",
	PixelFormatARGB:    "PIXEL_FORMAT_ARGB",
	PixelFormatZ16:     "PIXEL_FORMAT_Z16",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return pixelFormatNames[PixelFormatUnknown]
}

type CameraFormat struct {
	Size          Sizei
	PixelFormat   PixelFormat
	FrameRate     float32
	ConvertToARGB bool
}

func (m *CameraFormat) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Size)
	b = appendInt32(b, 2, int32(m.PixelFormat))
	b = appendFloat32(b, 3, m.FrameRate)
	b = appendBool(b, 4, m.ConvertToARGB)
	return b
}

func (m *CameraFormat) Unmarshal(data []byte) error {
	*m = CameraFormat{}
	return walk(data, "CameraFormat", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Size)
		case 2:
			return consumeInt32(typ, b, (*int32)(&m.PixelFormat))
		case 3:
			return consumeFloat32(typ, b, &m.FrameRate)
		case 4:
			return consumeBool(typ, b, &m.ConvertToARGB)
		}
		return 0, nil
	})
}

// Image is a plain image embedded in detection messages.
type Image struct {
	Size        Sizei
	PixelFormat PixelFormat
	Data        []byte

	// Converted is set when Data was rewritten to BGRA by the decoder.
	Converted bool
}

func (m *Image) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, &m.Size)
	b = appendInt32(b, 2, int32(m.PixelFormat))
	b = appendBytes(b, 3, m.Data)
	return b
}

func (m *Image) Unmarshal(data []byte) error {
	*m = Image{}
	return walk(data, "Image", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Size)
		case 2:
			return consumeInt32(typ, b, (*int32)(&m.PixelFormat))
		case 3:
			return consumeBytes(typ, b, &m.Data)
		}
		return 0, nil
	})
}

func (m *Image) normalize() error {
	out, converted, err := ToBGRA(m.PixelFormat, m.Size, m.Data)
	if err != nil {
		return errors.Wrap(err, "image")
	}
	if converted {
		m.Data = out
		m.PixelFormat = PixelFormatBGRA
		m.Converted = true
	}
	return nil
}

type CameraFrame struct {
	Data         []byte
	CameraFormat CameraFormat
	// Timestamp in microseconds.
	Timestamp int64

	Converted bool
}

func (m *CameraFrame) Kind() Kind { return KindCameraFrame }

func (m *CameraFrame) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.Data)
	b = appendMessage(b, 2, &m.CameraFormat)
	b = appendInt64(b, 3, m.Timestamp)
	return b
}

func (m *CameraFrame) Unmarshal(data []byte) error {
	*m = CameraFrame{}
	return walk(data, "CameraFrame", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Data)
		case 2:
			return consumeMessage(typ, b, &m.CameraFormat)
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

func (m *CameraFrame) normalize() error {
	out, converted, err := ToBGRA(m.CameraFormat.PixelFormat, m.CameraFormat.Size, m.Data)
	if err != nil {
		return errors.Wrap(err, "camera frame")
	}
	if converted {
		m.Data = out
		m.CameraFormat.PixelFormat = PixelFormatBGRA
		m.Converted = true
	}
	return nil
}

// DepthCameraFrame carries 16 bit depth samples. Min and Max bound the
// valid depth range in millimeters. Depth data is not a color image and
// is delivered as published.
type DepthCameraFrame struct {
	Data         []byte
	CameraFormat CameraFormat
	Timestamp    int64
	Min          float32
	Max          float32
}

func (m *DepthCameraFrame) Kind() Kind { return KindDepthCameraFrame }

func (m *DepthCameraFrame) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.Data)
	b = appendMessage(b, 2, &m.CameraFormat)
	b = appendInt64(b, 3, m.Timestamp)
	b = appendFloat32(b, 4, m.Min)
	b = appendFloat32(b, 5, m.Max)
	return b
}

func (m *DepthCameraFrame) Unmarshal(data []byte) error {
	*m = DepthCameraFrame{}
	return walk(data, "DepthCameraFrame", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Data)
		case 2:
			return consumeMessage(typ, b, &m.CameraFormat)
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		case 4:
			return consumeFloat32(typ, b, &m.Min)
		case 5:
			return consumeFloat32(typ, b, &m.Max)
		}
		return 0, nil
	})
}
