package msgs

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/pkg/errors"
)

// maxPixels bounds the declared size of an image. Larger frames are
// rejected before anything is allocated for them.
const maxPixels = 1 << 28

// BytesPerPixel returns the size of one pixel for packed formats and 0
// for planar or compressed ones.
func BytesPerPixel(f PixelFormat) int {
	switch f {
	case PixelFormatBGRA, PixelFormatBGRX, PixelFormatRGBA, PixelFormatRGBX, PixelFormatARGB:
		return 4
	case PixelFormatBGR, PixelFormatRGB:
		return 3
	case PixelFormatY16, PixelFormatZ16:
		return 2
	case PixelFormatY8:
		return 1
	}
	return 0
}

// inputLen is the number of bytes a raw w x h image of format f occupies.
// ok is false for formats ToBGRA cannot convert from raw planes.
func inputLen(f PixelFormat, w, h int) (n int, ok bool) {
	if bpp := BytesPerPixel(f); bpp > 0 {
		return w * h * bpp, true
	}
	switch f {
	case PixelFormatI420, PixelFormatYV12, PixelFormatNV12, PixelFormatNV21:
		cw, ch := (w+1)/2, (h+1)/2
		return w*h + 2*cw*ch, true
	case PixelFormatYUY2, PixelFormatUYVY:
		// two pixels share one chroma pair; rows are padded to even width
		return ((w + 1) / 2) * 4 * h, true
	}
	return 0, false
}

// byte offsets of b, g, r, a within one packed pixel; a < 0 means opaque.
type packedLayout struct {
	size       int
	b, g, r, a int
}

var packedLayouts = map[PixelFormat]packedLayout{
	PixelFormatBGRX: {4, 0, 1, 2, -1},
	PixelFormatBGR:  {3, 0, 1, 2, -1},
	PixelFormatRGB:  {3, 2, 1, 0, -1},
	PixelFormatRGBA: {4, 2, 1, 0, 3},
	PixelFormatRGBX: {4, 2, 1, 0, -1},
	PixelFormatARGB: {4, 3, 2, 1, 0},
}

// ToBGRA converts an image to 8 bit BGRA. When data is already BGRA it is
// returned as is and converted is false; otherwise a new buffer of
// width*height*4 bytes is allocated, once the input is known to hold the
// declared image.
func ToBGRA(f PixelFormat, size Sizei, data []byte) (out []byte, converted bool, err error) {
	w, h := int(size.Width), int(size.Height)
	area := size.Area()
	if area == 0 || area > maxPixels {
		return nil, false, errors.Wrapf(ErrMalformed, "image size %dx%d", w, h)
	}
	pixels := int(area)

	if f == PixelFormatMJPEG {
		out, err := jpegToBGRA(data, w, h)
		return out, err == nil, err
	}

	need, ok := inputLen(f, w, h)
	if !ok {
		return nil, false, errors.Wrap(ErrUnsupportedPixelFormat, f.String())
	}
	if err := expectLen(data, need, f); err != nil {
		return nil, false, err
	}
	if f == PixelFormatBGRA {
		return data, false, nil
	}

	out = make([]byte, pixels*4)
	if layout, ok := packedLayouts[f]; ok {
		for i := 0; i < pixels; i++ {
			src := data[i*layout.size:]
			dst := out[i*4:]
			dst[0], dst[1], dst[2] = src[layout.b], src[layout.g], src[layout.r]
			if layout.a >= 0 {
				dst[3] = src[layout.a]
			} else {
				dst[3] = 0xff
			}
		}
		return out, true, nil
	}

	switch f {
	case PixelFormatY8:
		for i := 0; i < pixels; i++ {
			putGray(out[i*4:], data[i])
		}
	case PixelFormatY16, PixelFormatZ16:
		for i := 0; i < pixels; i++ {
			// little endian; keep the high byte
			putGray(out[i*4:], data[i*2+1])
		}
	case PixelFormatI420, PixelFormatYV12, PixelFormatNV12, PixelFormatNV21:
		cw, ch := (w+1)/2, (h+1)/2
		yPlane := data[:pixels]
		chroma := data[pixels:]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				ci := (y/2)*cw + x/2
				var cb, cr uint8
				switch f {
				case PixelFormatI420:
					cb, cr = chroma[ci], chroma[cw*ch+ci]
				case PixelFormatYV12:
					cr, cb = chroma[ci], chroma[cw*ch+ci]
				case PixelFormatNV12:
					cb, cr = chroma[ci*2], chroma[ci*2+1]
				case PixelFormatNV21:
					cr, cb = chroma[ci*2], chroma[ci*2+1]
				}
				putYCbCr(out[(y*w+x)*4:], yPlane[y*w+x], cb, cr)
			}
		}
	case PixelFormatYUY2, PixelFormatUYVY:
		stride := ((w + 1) / 2) * 4
		for y := 0; y < h; y++ {
			row := data[y*stride:]
			for x := 0; x < w; x++ {
				macro := row[(x/2)*4:]
				var luma, cb, cr uint8
				if f == PixelFormatYUY2 {
					luma, cb, cr = macro[(x%2)*2], macro[1], macro[3]
				} else {
					luma, cb, cr = macro[(x%2)*2+1], macro[0], macro[2]
				}
				putYCbCr(out[(y*w+x)*4:], luma, cb, cr)
			}
		}
	}
	return out, true, nil
}

func expectLen(data []byte, want int, f PixelFormat) error {
	if len(data) < want {
		return errors.Wrapf(ErrMalformed, "%s: have %d bytes, need %d", f, len(data), want)
	}
	return nil
}

func putGray(dst []byte, v uint8) {
	dst[0], dst[1], dst[2], dst[3] = v, v, v, 0xff
}

func putYCbCr(dst []byte, y, cb, cr uint8) {
	r, g, b := color.YCbCrToRGB(y, cb, cr)
	dst[0], dst[1], dst[2], dst[3] = b, g, r, 0xff
}

func jpegToBGRA(data []byte, w, h int) ([]byte, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "mjpeg: %v", err)
	}
	if cfg.Width != w || cfg.Height != h {
		return nil, errors.Wrapf(ErrMalformed, "mjpeg: header says %dx%d, declared %dx%d", cfg.Width, cfg.Height, w, h)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "mjpeg: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != w || bounds.Dy() != h {
		return nil, errors.Wrapf(ErrMalformed, "mjpeg: decoded %dx%d, declared %dx%d", bounds.Dx(), bounds.Dy(), w, h)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	out := rgba.Pix
	for i := 0; i+3 < len(out); i += 4 {
		out[i], out[i+2] = out[i+2], out[i]
	}
	return out, nil
}
