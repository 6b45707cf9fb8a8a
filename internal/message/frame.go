package message

import (
	"encoding/binary"
	"math"
)

// poseSize is the byte size of a row-major 4x4 float32 pose matrix.
const poseSize = 16 * 4

// UnknownTimestamp is the sentinel frame timestamp used when a client
// does not supply one.
const UnknownTimestamp = -1.0

// Frame carries one synchronised capture: a frame index, an optional
// timestamp, one 4x4 pose per image slot, and the (possibly compressed)
// image bytes themselves, concatenated in slot order. The layout mirrors
// frame_message.py: frame_index, frame_timestamp, then a pose segment
// sized numImages*64, then an image segment whose per-slot sizes are
// carried out-of-band by the preceding FrameHeader message.
type Frame struct {
	imageByteSizes []int
	imageOffsets   []int
	buf            []byte
}

const frameFixedSize = 4 + 8 // frame_index + frame_timestamp

// NewFrame allocates a frame message sized to hold numImages poses and
// image bodies of the given byte sizes (as announced by a FrameHeader).
func NewFrame(imageByteSizes []int) *Frame {
	f := &Frame{imageByteSizes: append([]int(nil), imageByteSizes...)}
	numImages := len(imageByteSizes)

	poseBlockSize := numImages * poseSize
	imageBlockOffset := frameFixedSize + poseBlockSize

	f.imageOffsets = make([]int, numImages)
	offset := imageBlockOffset
	for i, sz := range imageByteSizes {
		f.imageOffsets[i] = offset
		offset += sz
	}

	f.buf = make([]byte, offset)
	f.SetTimestamp(UnknownTimestamp)
	return f
}

func (f *Frame) Size() int   { return len(f.buf) }
func (f *Frame) Buf() []byte { return f.buf }

// FrameIndex returns the frame index.
func (f *Frame) FrameIndex() int32 {
	return int32(binary.LittleEndian.Uint32(f.buf[0:4]))
}

// SetFrameIndex sets the frame index.
func (f *Frame) SetFrameIndex(idx int32) {
	binary.LittleEndian.PutUint32(f.buf[0:4], uint32(idx))
}

// Timestamp returns the frame timestamp, or UnknownTimestamp if none was
// supplied.
func (f *Frame) Timestamp() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(f.buf[4:12]))
}

// SetTimestamp sets the frame timestamp.
func (f *Frame) SetTimestamp(ts float64) {
	binary.LittleEndian.PutUint64(f.buf[4:12], math.Float64bits(ts))
}

func (f *Frame) poseOffset(i int) int { return frameFixedSize + i*poseSize }

// Pose returns the row-major 4x4 pose matrix for image slot i.
func (f *Frame) Pose(i int) [16]float32 {
	var pose [16]float32
	off := f.poseOffset(i)
	for j := 0; j < 16; j++ {
		pose[j] = bitsFloat32(binary.LittleEndian.Uint32(f.buf[off+j*4 : off+j*4+4]))
	}
	return pose
}

// SetPose sets the row-major 4x4 pose matrix for image slot i.
func (f *Frame) SetPose(i int, pose [16]float32) {
	off := f.poseOffset(i)
	for j, v := range pose {
		binary.LittleEndian.PutUint32(f.buf[off+j*4:off+j*4+4], float32bits(v))
	}
}

// NumImages returns the number of image slots this frame carries.
func (f *Frame) NumImages() int { return len(f.imageByteSizes) }

// ImageBytes returns the raw (possibly compressed) bytes for image slot
// i. The returned slice aliases the frame's buffer.
func (f *Frame) ImageBytes(i int) []byte {
	start := f.imageOffsets[i]
	end := start + f.imageByteSizes[i]
	return f.buf[start:end]
}

// SetImageBytes copies data into image slot i. len(data) must equal the
// byte size the frame was allocated with for that slot.
func (f *Frame) SetImageBytes(i int, data []byte) {
	copy(f.ImageBytes(i), data)
}
