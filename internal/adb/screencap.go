package adb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrBadFrame means a screencap payload could not be interpreted.
var ErrBadFrame = errors.New("malformed screencap payload")

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

const maxDim = 1 << 15

// DecodeFrame interprets the output of `screencap`. The raw framebuffer
// form starts with little-endian u32 width, height, and pixel format;
// depending on the Android release the header is 12 or 16 bytes, followed
// by RGBA pixels. PNG payloads (screencap -p) are decoded as such.
func DecodeFrame(buf []byte) (image.Image, error) {
	if bytes.HasPrefix(buf, pngMagic) {
		img, err := png.Decode(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		return img, nil
	}

	if len(buf) < 16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(buf))
	}
	w := int(binary.LittleEndian.Uint32(buf[0:4]))
	h := int(binary.LittleEndian.Uint32(buf[4:8]))
	if w <= 0 || h <= 0 || w > maxDim || h > maxDim {
		return nil, fmt.Errorf("%w: size %dx%d", ErrBadFrame, w, h)
	}

	need := w * h * 4
	var off int
	switch len(buf) {
	case 12 + need:
		off = 12
	case 16 + need:
		off = 16
	default:
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrBadFrame, len(buf), w, h)
	}

	return &image.NRGBA{
		Pix:    buf[off : off+need],
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}, nil
}
