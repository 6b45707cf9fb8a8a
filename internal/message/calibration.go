package message

import "encoding/binary"

// DefaultMaxImages is the number of image slots the mapping and skeleton
// protocols use in practice: colour + depth for RGB-D, colour only
// (padded) for the skeleton service.
const DefaultMaxImages = 2

const calibrationSlotSize = imageShapeSize + intrinsicsSize + 4 // shape + intrinsics + element_byte_size

// Calibration carries, per image slot: the image shape, the camera
// intrinsics and the per-element byte size (1 for 8-bit colour, 2 for
// 16-bit depth).
type Calibration struct {
	maxImages int32
	buf       []byte
}

// NewCalibration allocates a calibration message with room for maxImages
// slots.
func NewCalibration(maxImages int) *Calibration {
	c := &Calibration{maxImages: int32(maxImages)}
	c.buf = make([]byte, 4+int(c.maxImages)*calibrationSlotSize)
	binary.LittleEndian.PutUint32(c.buf[0:4], uint32(c.maxImages))
	return c
}

func (c *Calibration) Size() int   { return len(c.buf) }
func (c *Calibration) Buf() []byte { return c.buf }

// MaxImages returns the number of image slots. After a wire read, this
// re-derives the count from the first 4 bytes of the received buffer.
func (c *Calibration) MaxImages() int {
	c.maxImages = int32(binary.LittleEndian.Uint32(c.buf[0:4]))
	return int(c.maxImages)
}

func (c *Calibration) slotOffset(i int) int { return 4 + i*calibrationSlotSize }

// SetImageShapes writes the image shape for every slot. len(shapes) must
// equal MaxImages().
func (c *Calibration) SetImageShapes(shapes []ImageShape) {
	for i, s := range shapes {
		putImageShape(c.buf[c.slotOffset(i):], s)
	}
}

// ImageShapes reads back the per-slot image shapes.
func (c *Calibration) ImageShapes() []ImageShape {
	n := c.MaxImages()
	out := make([]ImageShape, n)
	for i := 0; i < n; i++ {
		out[i] = getImageShape(c.buf[c.slotOffset(i):])
	}
	return out
}

// SetIntrinsics writes the per-slot camera intrinsics.
func (c *Calibration) SetIntrinsics(intr []Intrinsics) {
	for i, in := range intr {
		putIntrinsics(c.buf[c.slotOffset(i)+imageShapeSize:], in)
	}
}

// Intrinsics reads back the per-slot camera intrinsics.
func (c *Calibration) Intrinsics() []Intrinsics {
	n := c.MaxImages()
	out := make([]Intrinsics, n)
	for i := 0; i < n; i++ {
		out[i] = getIntrinsics(c.buf[c.slotOffset(i)+imageShapeSize:])
	}
	return out
}

// SetElementByteSizes writes the per-slot element byte size (1 or 2).
func (c *Calibration) SetElementByteSizes(sizes []int32) {
	for i, sz := range sizes {
		off := c.slotOffset(i) + imageShapeSize + intrinsicsSize
		binary.LittleEndian.PutUint32(c.buf[off:off+4], uint32(sz))
	}
}

// ElementByteSizes reads back the per-slot element byte sizes.
func (c *Calibration) ElementByteSizes() []int32 {
	n := c.MaxImages()
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		off := c.slotOffset(i) + imageShapeSize + intrinsicsSize
		out[i] = int32(binary.LittleEndian.Uint32(c.buf[off : off+4]))
	}
	return out
}

// UncompressedImageByteSizes returns, for each slot, height*width*channels
// times the element byte size -- the size of an uncompressed image of
// that shape, used to size the frame message queue's pooled buffers.
func (c *Calibration) UncompressedImageByteSizes() []int {
	shapes := c.ImageShapes()
	sizes := c.ElementByteSizes()
	out := make([]int, len(shapes))
	for i, s := range shapes {
		out[i] = int(s.Height) * int(s.Width) * int(s.Channels) * int(sizes[i])
	}
	return out
}
