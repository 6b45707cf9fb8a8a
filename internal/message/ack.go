package message

// Ack is the zero-length acknowledgement record.
type Ack struct{}

func (Ack) Size() int   { return 0 }
func (Ack) Buf() []byte { return nil }
