package mapping

import (
	"log/slog"
	"net"
	"sync"

	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/metrics"
	"github.com/sgolodetz/smg-comms-go/internal/netio"
	"github.com/sgolodetz/smg-comms-go/internal/queue"
)

// FrameDecompressor optionally reverses a client's FrameCompressor before
// a frame is published to the server's queue and newest-frame cache.
type FrameDecompressor func(*message.Frame) *message.Frame

const clientQueueCapacity = 5

// clientHandler owns one accepted connection for the lifetime of a
// mapping client: handshake, then a receive loop that reads
// FrameHeader+Frame pairs and acknowledges each.
type clientHandler struct {
	clientID int
	conn     net.Conn
	stop     <-chan struct{}

	decompress FrameDecompressor
	policy     queue.OverflowPolicy

	mu           sync.Mutex
	calib        *message.Calibration
	frameQ       *queue.Pool[message.Frame]
	newestFrame  *message.Frame
	connectionOK bool

	logger *slog.Logger
}

func newClientHandler(id int, conn net.Conn, stop <-chan struct{}, decompress FrameDecompressor, policy queue.OverflowPolicy, logger *slog.Logger) *clientHandler {
	return &clientHandler{
		clientID:     id,
		conn:         conn,
		stop:         stop,
		decompress:   decompress,
		policy:       policy,
		connectionOK: true,
		logger:       logger,
	}
}

// runPre reads the calibration handshake and, on success, initialises the
// frame queue and acknowledges.
func (h *clientHandler) runPre() {
	calib := message.NewCalibration(message.DefaultMaxImages)
	ok, err := netio.ReadMessage(h.conn, calib, h.stop)
	if err != nil || !ok {
		h.connectionOK = false
		return
	}

	h.mu.Lock()
	h.calib = calib
	sizes := calib.UncompressedImageByteSizes()
	h.frameQ = queue.New[message.Frame](h.policy)
	h.frameQ.Initialise(clientQueueCapacity, func() *message.Frame { return message.NewFrame(sizes) })
	h.mu.Unlock()

	h.logger.Info("calibration_received",
		"client_id", h.clientID, "image_shapes", calib.ImageShapes(), "intrinsics", calib.Intrinsics())

	var ack message.Ack
	ok, err = netio.WriteMessage(h.conn, &ack)
	if err != nil || !ok {
		h.connectionOK = false
	}
}

// runIter reads one FrameHeader + Frame pair, publishes it to the queue
// and the newest-frame cache, and acknowledges.
func (h *clientHandler) runIter() {
	numImages := h.calib.MaxImages()
	header := message.NewFrameHeader(numImages)
	ok, err := netio.ReadMessage(h.conn, header, h.stop)
	h.connectionOK = err == nil && ok
	if !h.connectionOK {
		return
	}

	sizes := make([]int, numImages)
	for i, sz := range header.ImageByteSizes() {
		sizes[i] = int(sz)
	}
	frame := message.NewFrame(sizes)
	ok, err = netio.ReadMessage(h.conn, frame, h.stop)
	h.connectionOK = err == nil && ok
	if !h.connectionOK {
		return
	}

	decompressed := frame
	if h.decompress != nil {
		decompressed = h.decompress(frame)
	}

	h.mu.Lock()
	h.newestFrame = decompressed
	q := h.frameQ
	h.mu.Unlock()

	push, perr := q.BeginPush(h.stop)
	if perr == nil {
		if elt := push.Get(); elt != nil {
			copyFrame(elt, decompressed)
		}
		push.Commit()
	}
	metrics.IncFramesReceived()

	var ack message.Ack
	ok, err = netio.WriteMessage(h.conn, &ack)
	h.connectionOK = err == nil && ok
}

// copyFrame copies src's fields into dst, which must have been allocated
// with matching image byte sizes.
func copyFrame(dst, src *message.Frame) {
	dst.SetFrameIndex(src.FrameIndex())
	dst.SetTimestamp(src.Timestamp())
	for i := 0; i < src.NumImages(); i++ {
		dst.SetPose(i, src.Pose(i))
		dst.SetImageBytes(i, src.ImageBytes(i))
	}
}

func (h *clientHandler) isConnectionOK() bool {
	return h.connectionOK
}

func (h *clientHandler) hasFramesNow() bool {
	h.mu.Lock()
	q := h.frameQ
	h.mu.Unlock()
	return q != nil && !q.Empty()
}

// queueDepth returns the number of frames currently queued for this
// client, or 0 before the handshake has initialised the queue.
func (h *clientHandler) queueDepth() int {
	h.mu.Lock()
	q := h.frameQ
	h.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.Len()
}

func (h *clientHandler) getFrame(receiver func(*message.Frame)) {
	h.mu.Lock()
	q := h.frameQ
	h.mu.Unlock()
	if q == nil {
		return
	}
	frame, err := q.Peek(h.stop)
	if err != nil {
		return
	}
	receiver(frame)
	_ = q.Pop(h.stop)
}

func (h *clientHandler) peekNewestFrame(receiver func(*message.Frame)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.newestFrame == nil {
		return false
	}
	receiver(h.newestFrame)
	return true
}

func (h *clientHandler) imageShapes() []message.ImageShape {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calib == nil {
		return nil
	}
	return h.calib.ImageShapes()
}

func (h *clientHandler) intrinsics() []message.Intrinsics {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calib == nil {
		return nil
	}
	return h.calib.Intrinsics()
}
