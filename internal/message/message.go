// Package message implements the fixed binary wire records shared by the
// mapping and skeleton-detection protocols: a contiguous byte buffer per
// message, fields addressed by byte offset, all multi-byte scalars
// little-endian.
package message

import "encoding/binary"

// Message is satisfied by every wire record. Buf returns the live backing
// array so that netio.ReadMessage/WriteMessage can read/write it directly
// without an extra copy, mirroring the original implementation's practice
// of handing callers the message's own numpy buffer.
type Message interface {
	Size() int
	Buf() []byte
}

// ImageShape is a (height, width, channels) triple, stored as three
// little-endian int32s wherever it appears on the wire.
type ImageShape struct {
	Height   int32
	Width    int32
	Channels int32
}

const imageShapeSize = 12

func putImageShape(b []byte, s ImageShape) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Height))
	binary.LittleEndian.PutUint32(b[4:8], uint32(s.Width))
	binary.LittleEndian.PutUint32(b[8:12], uint32(s.Channels))
}

func getImageShape(b []byte) ImageShape {
	return ImageShape{
		Height:   int32(binary.LittleEndian.Uint32(b[0:4])),
		Width:    int32(binary.LittleEndian.Uint32(b[4:8])),
		Channels: int32(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// Intrinsics holds pinhole camera parameters (fx, fy, cx, cy), stored as
// four little-endian float32s wherever it appears on the wire.
type Intrinsics struct {
	Fx, Fy, Cx, Cy float32
}

const intrinsicsSize = 16

func putIntrinsics(b []byte, in Intrinsics) {
	binary.LittleEndian.PutUint32(b[0:4], float32bits(in.Fx))
	binary.LittleEndian.PutUint32(b[4:8], float32bits(in.Fy))
	binary.LittleEndian.PutUint32(b[8:12], float32bits(in.Cx))
	binary.LittleEndian.PutUint32(b[12:16], float32bits(in.Cy))
}

func getIntrinsics(b []byte) Intrinsics {
	return Intrinsics{
		Fx: bitsFloat32(binary.LittleEndian.Uint32(b[0:4])),
		Fy: bitsFloat32(binary.LittleEndian.Uint32(b[4:8])),
		Cx: bitsFloat32(binary.LittleEndian.Uint32(b[8:12])),
		Cy: bitsFloat32(binary.LittleEndian.Uint32(b[12:16])),
	}
}
