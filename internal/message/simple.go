package message

import (
	"encoding/binary"
	"errors"
)

// ErrUnsupportedSimpleType names the error for a SimpleMessage of a type
// the wire format doesn't know how to carry. No function in this module
// returns it: the Python original dispatched on a generic type parameter
// at construction time, but since the wire only ever uses the int32
// variant (see SimpleInt), no other variant can be constructed here
// (REDESIGN: "Dynamic Simple<T>").
var ErrUnsupportedSimpleType = errors.New("message: unsupported simple type")

// SimpleInt is a message containing a single little-endian int32 value.
// It is the only concrete Simple<T> instantiation the protocol uses.
type SimpleInt struct {
	data [4]byte
}

// NewSimpleInt constructs a SimpleInt carrying value.
func NewSimpleInt(value int32) *SimpleInt {
	s := &SimpleInt{}
	s.SetValue(value)
	return s
}

func (s *SimpleInt) Size() int    { return 4 }
func (s *SimpleInt) Buf() []byte  { return s.data[:] }
func (s *SimpleInt) Value() int32 { return int32(binary.LittleEndian.Uint32(s.data[:])) }

func (s *SimpleInt) SetValue(value int32) {
	binary.LittleEndian.PutUint32(s.data[:], uint32(value))
}
