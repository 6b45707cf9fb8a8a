// Package netio implements the blocking read/write primitives the mapping
// and skeleton-detection protocols use to move message.Message values
// across a net.Conn, grounded on socket_util.py's read_message/
// write_message: read (or write) the message's exact byte size. Reads
// retry on timeout until either the data arrives or the caller asks to
// stop; writes are a single blocking Write with no deadline.
package netio

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/message"
)

// readDeadline bounds each individual recv so that ReadMessage can notice
// a closed stop channel promptly instead of blocking indefinitely.
const readDeadline = 100 * time.Millisecond

// ReadMessage attempts to fill msg with exactly msg.Size() bytes read from
// conn. It returns true on success. It returns false (with no error) if
// the connection is closed, the peer disconnects mid-read, or stop is
// closed while waiting on a timeout. A non-nil error is returned only for
// unexpected I/O failures the caller may want to log.
func ReadMessage(conn net.Conn, msg message.Message, stop <-chan struct{}) (bool, error) {
	buf := msg.Buf()
	want := msg.Size()
	if want == 0 {
		return true, nil
	}

	got := 0
	for got < want {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := conn.Read(buf[got:want])
		if n > 0 {
			got += n
			continue
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				select {
				case <-stop:
					return false, nil
				default:
					continue
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return false, nil
			}
			return false, err
		}
		// Zero bytes, no error: treat like the peer closing its write side.
		return false, nil
	}
	return true, nil
}

// WriteMessage writes the whole of msg.Buf() to conn. It returns true on
// success, false if the connection was aborted or reset by the peer.
func WriteMessage(conn net.Conn, msg message.Message) (bool, error) {
	buf := msg.Buf()
	if len(buf) == 0 {
		return true, nil
	}
	if _, err := conn.Write(buf); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
			return false, nil
		}
		var ne net.Error
		if errors.As(err, &ne) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
