package skeleton

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/netio"
)

// FrameCompressor optionally transforms a captured frame before it is
// sent to the service (e.g. JPEG/PNG-encoding the image planes).
type FrameCompressor func(*message.Frame) *message.Frame

// Client drives the request/response skeleton-detection protocol: send a
// frame via BeginDetection, then later collect the results via
// EndDetection. Calls are not safe for concurrent use.
type Client struct {
	conn net.Conn

	compress  FrameCompressor
	connectTO time.Duration

	mu           sync.Mutex
	maskHeight   int
	maskWidth    int
	haveMaskSize bool
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithFrameCompressor installs a compressor applied to the frame passed
// to BeginDetection before transmission.
func WithFrameCompressor(fn FrameCompressor) ClientOption {
	return func(c *Client) { c.compress = fn }
}

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.connectTO = d
		}
	}
}

// NewClient dials endpoint and returns a connected skeleton-detection
// client.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{connectTO: 10 * time.Second}
	for _, o := range opts {
		o(c)
	}
	conn, err := net.DialTimeout("tcp", endpoint, c.connectTO)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	c.conn = conn
	return c, nil
}

// SetCalibration sends SET_CALIBRATION followed by calib and waits for
// the service's Ack.
func (c *Client) SetCalibration(calib *message.Calibration) error {
	if ok, err := netio.WriteMessage(c.conn, message.NewSetCalibration()); err != nil || !ok {
		return fmt.Errorf("%w: send set_calibration control: %v", ErrProtocol, err)
	}
	if ok, err := netio.WriteMessage(c.conn, calib); err != nil || !ok {
		return fmt.Errorf("%w: send calibration: %v", ErrProtocol, err)
	}
	var ack message.Ack
	if ok, err := netio.ReadMessage(c.conn, &ack, nil); err != nil || !ok {
		return fmt.Errorf("%w: receive calibration ack: %v", ErrProtocol, err)
	}
	return nil
}

// BeginDetection sends BEGIN_DETECTION followed by a FrameHeader and the
// frame itself (optionally compressed first), then waits for the Ack.
// shapes gives the per-slot image shape the frame was populated with;
// the colour slot's (height, width) becomes the mask shape expected by
// the next EndDetection call.
func (c *Client) BeginDetection(frame *message.Frame, shapes []message.ImageShape) error {
	if ok, err := netio.WriteMessage(c.conn, message.NewBeginDetection()); err != nil || !ok {
		return fmt.Errorf("%w: send begin_detection control: %v", ErrProtocol, err)
	}

	toSend := frame
	if c.compress != nil {
		toSend = c.compress(frame)
	}

	header := message.NewFrameHeader(toSend.NumImages())
	sizes := make([]int32, toSend.NumImages())
	for i := range sizes {
		sizes[i] = int32(len(toSend.ImageBytes(i)))
	}
	header.SetImageShapes(shapes)
	header.SetImageByteSizes(sizes)

	if ok, err := netio.WriteMessage(c.conn, header); err != nil || !ok {
		return fmt.Errorf("%w: send frame header: %v", ErrProtocol, err)
	}
	if ok, err := netio.WriteMessage(c.conn, toSend); err != nil || !ok {
		return fmt.Errorf("%w: send frame: %v", ErrProtocol, err)
	}
	var ack message.Ack
	if ok, err := netio.ReadMessage(c.conn, &ack, nil); err != nil || !ok {
		return fmt.Errorf("%w: receive begin_detection ack: %v", ErrProtocol, err)
	}

	c.mu.Lock()
	c.maskHeight = int(shapes[0].Height)
	c.maskWidth = int(shapes[0].Width)
	c.haveMaskSize = true
	c.mu.Unlock()
	return nil
}

// EndDetection sends END_DETECTION and reads back the serialised
// skeletons and the people-mask. If no prior BeginDetection recorded a
// mask shape, it returns an empty result without sending anything, per
// the reference client's behaviour.
func (c *Client) EndDetection() ([]Skeleton, *message.BinaryMask, error) {
	c.mu.Lock()
	height, width, ok := c.maskHeight, c.maskWidth, c.haveMaskSize
	c.haveMaskSize = false
	c.mu.Unlock()
	if !ok {
		return nil, nil, nil
	}

	if ok, err := netio.WriteMessage(c.conn, message.NewEndDetection()); err != nil || !ok {
		return nil, nil, fmt.Errorf("%w: send end_detection control: %v", ErrProtocol, err)
	}

	var length message.SimpleInt
	if ok, err := netio.ReadMessage(c.conn, &length, nil); err != nil || !ok {
		return nil, nil, fmt.Errorf("%w: receive length: %v", ErrProtocol, err)
	}

	data := message.NewData(int(length.Value()))
	if ok, err := netio.ReadMessage(c.conn, data, nil); err != nil || !ok {
		return nil, nil, fmt.Errorf("%w: receive data: %v", ErrProtocol, err)
	}

	mask := message.NewBinaryMask(height, width)
	if ok, err := netio.ReadMessage(c.conn, mask, nil); err != nil || !ok {
		return nil, nil, fmt.Errorf("%w: receive mask: %v", ErrProtocol, err)
	}

	skeletons, err := Decode(string(data.Buf()))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode skeletons: %v", ErrProtocol, err)
	}
	return skeletons, mask, nil
}

// Terminate closes the connection.
func (c *Client) Terminate() error {
	return c.conn.Close()
}
