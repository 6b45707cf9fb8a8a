// Package mapping implements the RGB-D mapping protocol: many capture
// clients stream calibrated colour+depth+pose frames to a server that
// exposes the newest, and oldest-unseen, frame per client.
package mapping

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/metrics"
	"github.com/sgolodetz/smg-comms-go/internal/netio"
	"github.com/sgolodetz/smg-comms-go/internal/queue"
)

// FrameCompressor optionally transforms a captured frame before it is
// sent across the wire (e.g. JPEG/PNG-encoding the image planes). The
// original frame is left untouched in the pool.
type FrameCompressor func(*message.Frame) *message.Frame

// Client connects to a mapping server, sends a calibration handshake,
// then streams frame messages from a single-slot pooled queue across a
// dedicated sender goroutine.
type Client struct {
	conn net.Conn

	calib     *message.Calibration
	frameQ    *queue.Pool[message.Frame]
	compress  FrameCompressor
	policy    queue.OverflowPolicy
	connectTO time.Duration

	stop       chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once
	senderDone chan struct{}

	mu            sync.Mutex
	connectionOK  bool
	senderStarted bool
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithFrameCompressor installs a compressor applied to each frame
// immediately before transmission.
func WithFrameCompressor(fn FrameCompressor) ClientOption {
	return func(c *Client) { c.compress = fn }
}

// WithClientOverflowPolicy selects the pooled queue's overflow policy.
// Defaults to PolicyDiscardOldest, matching the reference client.
func WithClientOverflowPolicy(p queue.OverflowPolicy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.connectTO = d
		}
	}
}

// NewClient dials endpoint and returns a connected mapping client. The
// calibration handshake still needs to be sent via SendCalibrationMessage
// before frames can be queued.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		policy:    queue.PolicyDiscardOldest,
		connectTO: 10 * time.Second,
		stop:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	conn, err := net.DialTimeout("tcp", endpoint, c.connectTO)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	c.conn = conn
	c.connectionOK = true
	return c, nil
}

// SendCalibrationMessage sends calib to the server and waits for an Ack.
// On success it caches the calibration, initialises the frame queue with
// capacity 1, and starts the sender goroutine.
func (c *Client) SendCalibrationMessage(calib *message.Calibration) error {
	ok, err := netio.WriteMessage(c.conn, calib)
	if err != nil || !ok {
		return fmt.Errorf("%w: failed to send calibration message: %v", ErrProtocol, err)
	}

	var ack message.Ack
	ok, err = netio.ReadMessage(c.conn, &ack, nil)
	if err != nil || !ok {
		return fmt.Errorf("%w: failed to receive calibration ack: %v", ErrProtocol, err)
	}

	c.calib = calib
	sizes := calib.UncompressedImageByteSizes()
	c.frameQ = queue.New[message.Frame](c.policy)
	c.frameQ.Initialise(1, func() *message.Frame { return message.NewFrame(sizes) })

	c.mu.Lock()
	c.senderStarted = true
	c.mu.Unlock()
	c.senderDone = make(chan struct{})
	go c.runSender()

	return nil
}

// SendFrameMessage acquires a push handle from the frame queue and, if a
// slot was granted, invokes filler to populate it. The slot commits when
// filler returns.
func (c *Client) SendFrameMessage(filler func(*message.Frame)) error {
	h, err := c.frameQ.BeginPush(c.stop)
	if err != nil {
		return nil // terminating; silently drop, matching the Python client's best-effort semantics
	}
	defer h.Commit()
	if elt := h.Get(); elt != nil {
		filler(elt)
	}
	return nil
}

// Terminate signals the sender to stop, joins it, and closes the
// connection. Idempotent.
func (c *Client) Terminate() error {
	var shutdownErr error
	// The sender may already have closed stop after an I/O failure, so
	// joining and closing the connection are guarded separately.
	c.stopOnce.Do(func() { close(c.stop) })
	c.closeOnce.Do(func() {
		c.mu.Lock()
		started := c.senderStarted
		c.mu.Unlock()
		if started {
			<-c.senderDone
		}
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		shutdownErr = c.conn.Close()
	})
	return shutdownErr
}

// runSender is the sender goroutine: peek the queue head, optionally
// compress it, write a FrameHeader then the frame body, wait for an Ack,
// then pop on success or halt on any failure.
func (c *Client) runSender() {
	defer close(c.senderDone)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		frame, err := c.frameQ.Peek(c.stop)
		if err != nil {
			return
		}

		toSend := frame
		if c.compress != nil {
			toSend = c.compress(frame)
		}

		calibShapes := c.calib.ImageShapes()
		header := message.NewFrameHeader(toSend.NumImages())
		shapes := make([]message.ImageShape, toSend.NumImages())
		sizes := make([]int32, toSend.NumImages())
		for i := range shapes {
			shapes[i] = calibShapes[i]
			sizes[i] = int32(len(toSend.ImageBytes(i)))
		}
		header.SetImageShapes(shapes)
		header.SetImageByteSizes(sizes)

		ok, werr := netio.WriteMessage(c.conn, header)
		if werr != nil || !ok {
			c.stopOnce.Do(func() { close(c.stop) })
			return
		}
		ok, werr = netio.WriteMessage(c.conn, toSend)
		if werr != nil || !ok {
			c.stopOnce.Do(func() { close(c.stop) })
			return
		}
		var ack message.Ack
		ok, rerr := netio.ReadMessage(c.conn, &ack, c.stop)
		if rerr != nil || !ok {
			c.stopOnce.Do(func() { close(c.stop) })
			return
		}

		metrics.IncFramesSent()
		if err := c.frameQ.Pop(c.stop); err != nil {
			return
		}
	}
}
