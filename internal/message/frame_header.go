package message

import "encoding/binary"

const frameHeaderSlotSize = imageShapeSize + 4 // shape + compressed image_byte_size

// FrameHeader announces, per image slot, the shape and the exact
// (possibly compressed) byte size of the image that will follow in the
// next Frame message. A server or client allocates its Frame buffer from
// this before reading the frame body.
type FrameHeader struct {
	numImages int32
	buf       []byte
}

// NewFrameHeader allocates a frame header with room for numImages slots.
func NewFrameHeader(numImages int) *FrameHeader {
	h := &FrameHeader{numImages: int32(numImages)}
	h.buf = make([]byte, 4+int(numImages)*frameHeaderSlotSize)
	binary.LittleEndian.PutUint32(h.buf[0:4], uint32(numImages))
	return h
}

func (h *FrameHeader) Size() int   { return len(h.buf) }
func (h *FrameHeader) Buf() []byte { return h.buf }

// NumImages returns the number of image slots, re-derived from the
// buffer so it is correct after a wire read into a header allocated with
// a placeholder count.
func (h *FrameHeader) NumImages() int {
	h.numImages = int32(binary.LittleEndian.Uint32(h.buf[0:4]))
	return int(h.numImages)
}

func (h *FrameHeader) slotOffset(i int) int { return 4 + i*frameHeaderSlotSize }

// SetImageShapes writes the per-slot image shapes.
func (h *FrameHeader) SetImageShapes(shapes []ImageShape) {
	for i, s := range shapes {
		putImageShape(h.buf[h.slotOffset(i):], s)
	}
}

// ImageShapes reads back the per-slot image shapes.
func (h *FrameHeader) ImageShapes() []ImageShape {
	n := h.NumImages()
	out := make([]ImageShape, n)
	for i := 0; i < n; i++ {
		out[i] = getImageShape(h.buf[h.slotOffset(i):])
	}
	return out
}

// SetImageByteSizes writes the per-slot image byte size (the size of the
// image as it will appear in the following Frame message's image block).
func (h *FrameHeader) SetImageByteSizes(sizes []int32) {
	for i, sz := range sizes {
		off := h.slotOffset(i) + imageShapeSize
		binary.LittleEndian.PutUint32(h.buf[off:off+4], uint32(sz))
	}
}

// ImageByteSizes reads back the per-slot image byte sizes.
func (h *FrameHeader) ImageByteSizes() []int32 {
	n := h.NumImages()
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		off := h.slotOffset(i) + imageShapeSize
		out[i] = int32(binary.LittleEndian.Uint32(h.buf[off : off+4]))
	}
	return out
}
