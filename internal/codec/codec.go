// Package codec provides the default image (de)compressors for frame
// image slots: JPEG for 8-bit colour images, 16-bit PNG for depth
// images. Compression itself is explicitly pluggable (see
// message.Frame / mapping.FrameCompressor / skeleton.FrameCompressor);
// this package is one ready-made implementation that callers install with
// the With*Compressor / With*Decompressor options. Nothing installs it
// automatically.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/sgolodetz/smg-comms-go/internal/message"
)

// DefaultJPEGQuality is the quality level used for colour slots.
const DefaultJPEGQuality = 90

// slotKind classifies an image slot from its calibrated element byte
// size: 1 byte/channel is treated as 8-bit colour (JPEG), 2 bytes/pixel
// as 16-bit depth (PNG).
func slotKind(elementByteSize int32) string {
	if elementByteSize >= 2 {
		return "depth"
	}
	return "colour"
}

// NewCompressor returns a frame compressor that JPEG-encodes colour
// slots and 16-bit-PNG-encodes depth slots, as calibrated by shapes and
// elementByteSizes (both indexed the same way as a Calibration's
// slots). The returned value has an unnamed function type so it is
// assignable directly to mapping.FrameCompressor or
// skeleton.FrameCompressor.
func NewCompressor(shapes []message.ImageShape, elementByteSizes []int32, jpegQuality int) func(*message.Frame) *message.Frame {
	if jpegQuality <= 0 {
		jpegQuality = DefaultJPEGQuality
	}
	return func(src *message.Frame) *message.Frame {
		encoded := make([][]byte, src.NumImages())
		for i := 0; i < src.NumImages(); i++ {
			shape := shapes[i]
			raw := src.ImageBytes(i)
			var out []byte
			var err error
			switch slotKind(elementByteSizes[i]) {
			case "depth":
				out, err = encodeDepthPNG16(raw, int(shape.Width), int(shape.Height))
			default:
				out, err = encodeColourJPEG(raw, int(shape.Width), int(shape.Height), int(shape.Channels), jpegQuality)
			}
			if err != nil {
				// Fall back to the uncompressed slot rather than dropping the
				// frame. NewDecompressor's decoders fail on such raw bytes,
				// and it then copies them unchanged into a raw-sized slot.
				out = append([]byte(nil), raw...)
			}
			encoded[i] = out
		}

		sizes := make([]int, len(encoded))
		for i, b := range encoded {
			sizes[i] = len(b)
		}
		dst := message.NewFrame(sizes)
		dst.SetFrameIndex(src.FrameIndex())
		dst.SetTimestamp(src.Timestamp())
		for i := 0; i < src.NumImages(); i++ {
			dst.SetPose(i, src.Pose(i))
			dst.SetImageBytes(i, encoded[i])
		}
		return dst
	}
}

// NewDecompressor returns the inverse of NewCompressor: it decodes each
// slot back to its raw, uncompressed byte form sized per shapes and
// elementByteSizes.
func NewDecompressor(shapes []message.ImageShape, elementByteSizes []int32) func(*message.Frame) *message.Frame {
	rawSizes := make([]int, len(shapes))
	for i, s := range shapes {
		rawSizes[i] = int(s.Height) * int(s.Width) * int(s.Channels) * int(elementByteSizes[i])
	}
	return func(src *message.Frame) *message.Frame {
		decoded := make([][]byte, src.NumImages())
		for i := 0; i < src.NumImages(); i++ {
			shape := shapes[i]
			enc := src.ImageBytes(i)
			var out []byte
			var err error
			switch slotKind(elementByteSizes[i]) {
			case "depth":
				out, err = decodeDepthPNG16(enc, int(shape.Width), int(shape.Height))
			default:
				out, err = decodeColourJPEG(enc, int(shape.Width), int(shape.Height), int(shape.Channels))
			}
			if err != nil {
				out = make([]byte, rawSizes[i])
				copy(out, enc)
			}
			decoded[i] = out
		}

		dst := message.NewFrame(rawSizes)
		dst.SetFrameIndex(src.FrameIndex())
		dst.SetTimestamp(src.Timestamp())
		for i := 0; i < src.NumImages(); i++ {
			dst.SetPose(i, src.Pose(i))
			dst.SetImageBytes(i, decoded[i])
		}
		return dst
	}
}

func encodeColourJPEG(raw []byte, width, height, channels, quality int) ([]byte, error) {
	img, err := rawToRGBA(raw, width, height, channels)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("codec: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeColourJPEG(data []byte, width, height, channels int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: jpeg decode: %w", err)
	}
	return rgbaToRaw(img, width, height, channels)
}

func encodeDepthPNG16(raw []byte, width, height int) ([]byte, error) {
	if len(raw) != width*height*2 {
		return nil, fmt.Errorf("codec: depth buffer has %d bytes, want %d (%dx%d x 2)", len(raw), width*height*2, width, height)
	}
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		v := uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		img.Pix[2*i] = byte(v >> 8)
		img.Pix[2*i+1] = byte(v)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("codec: png encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDepthPNG16(data []byte, width, height int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: png decode: %w", err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, fmt.Errorf("codec: decoded depth image is %T, want *image.Gray16", img)
	}
	if gray.Bounds().Dx() != width || gray.Bounds().Dy() != height {
		return nil, fmt.Errorf("codec: decoded depth image is %dx%d, want %dx%d", gray.Bounds().Dx(), gray.Bounds().Dy(), width, height)
	}
	out := make([]byte, width*height*2)
	for i := 0; i < width*height; i++ {
		hi, lo := gray.Pix[2*i], gray.Pix[2*i+1]
		v := uint16(hi)<<8 | uint16(lo)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out, nil
}

// rawToRGBA interprets raw as a row-major image with the given channel
// count (3 = RGB, 1 = grayscale treated as colour) and returns an
// image.Image the stdlib jpeg encoder can consume.
func rawToRGBA(raw []byte, width, height, channels int) (image.Image, error) {
	if len(raw) != width*height*channels {
		return nil, fmt.Errorf("codec: colour buffer has %d bytes, want %d (%dx%dx%d)", len(raw), width*height*channels, width, height, channels)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		var r, g, b byte
		switch channels {
		case 1:
			r, g, b = raw[i], raw[i], raw[i]
		default:
			off := i * channels
			r, g, b = raw[off], raw[off+1], raw[off+2]
		}
		img.SetRGBA(i%width, i/width, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return img, nil
}

// rgbaToRaw converts a decoded image back to the raw row-major buffer
// shape the frame's colour slot expects.
func rgbaToRaw(img image.Image, width, height, channels int) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("codec: decoded colour image is %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}
	out := make([]byte, width*height*channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*width + x) * channels
			switch channels {
			case 1:
				out[i] = byte(r >> 8)
			default:
				out[i] = byte(r >> 8)
				out[i+1] = byte(g >> 8)
				out[i+2] = byte(bl >> 8)
			}
		}
	}
	return out, nil
}
