// Package skeleton implements the single-client request/response
// skeleton-detection protocol: a client pushes a colour(+depth+pose)
// frame, the service runs an external detector, and the client later
// pulls back the detected skeletons plus a binary people-mask.
package skeleton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/sgolodetz/smg-comms-go/internal/logging"
	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/metrics"
	"github.com/sgolodetz/smg-comms-go/internal/netio"
)

// FrameDecompressor optionally reverses a Client's FrameCompressor before
// the detector sees the frame.
type FrameDecompressor func(*message.Frame) *message.Frame

// FrameProcessor runs the actual detector against a received frame and
// the last-known intrinsics for its colour slot. A nil mask means the
// service should synthesise one via MaskRenderer.
type FrameProcessor func(frame *message.Frame, intrinsics message.Intrinsics) (skeletons []Skeleton, mask *message.BinaryMask)

// MaskRenderer synthesises a people-mask from detected skeletons when the
// frame processor doesn't provide one directly.
type MaskRenderer func(skeletons []Skeleton, intrinsics message.Intrinsics, height, width int) *message.BinaryMask

// Service accepts one skeleton-detection client at a time. When the
// active client disconnects, the accept loop resumes and serves the
// next one.
type Service struct {
	addr string

	decompress FrameDecompressor
	process    FrameProcessor
	renderMask MaskRenderer

	stop     chan struct{}
	stopOnce sync.Once
	listener net.Listener
	readyCh  chan struct{}
	readyOne sync.Once
	wg       sync.WaitGroup

	logger *slog.Logger
}

// ServiceOption configures a Service at construction time.
type ServiceOption func(*Service)

// WithServiceListenAddr sets the listen address (default "127.0.0.1:7852").
func WithServiceListenAddr(addr string) ServiceOption { return func(s *Service) { s.addr = addr } }

// WithFrameDecompressor installs a decompressor applied to each received
// frame before it reaches the frame processor.
func WithFrameDecompressor(fn FrameDecompressor) ServiceOption {
	return func(s *Service) { s.decompress = fn }
}

// WithFrameProcessor installs the detector. Required; NewService panics if
// this option is never supplied.
func WithFrameProcessor(fn FrameProcessor) ServiceOption {
	return func(s *Service) { s.process = fn }
}

// WithMaskRenderer installs the fallback mask synthesiser used when the
// frame processor returns a nil mask.
func WithMaskRenderer(fn MaskRenderer) ServiceOption {
	return func(s *Service) { s.renderMask = fn }
}

// WithServiceLogger overrides the service's logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService constructs a skeleton-detection service. Call Serve to start
// accepting connections.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		addr:    "127.0.0.1:7852",
		stop:    make(chan struct{}),
		readyCh: make(chan struct{}),
		logger:  logging.Component("skeleton_service"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.process == nil {
		panic("skeleton: NewService requires WithFrameProcessor")
	}
	return s
}

// Ready signals once the listener is bound.
func (s *Service) Ready() <-chan struct{} { return s.readyCh }

// Serve binds the listen address and serves one client connection at a
// time until ctx is cancelled or Shutdown is called.
func (s *Service) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		metrics.IncError(metrics.ErrListen)
		return fmt.Errorf("%w: %v", ErrListen, err)
	}
	s.listener = ln
	s.readyOne.Do(func() { close(s.readyCh) })
	s.logger.Info("listening", "addr", ln.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			metrics.IncError(metrics.ErrAccept)
			return fmt.Errorf("%w: %v", ErrAccept, err)
		}
		metrics.SetActiveClients(1)
		s.wg.Add(1)
		s.serveConn(conn)
		s.wg.Done()
		metrics.SetActiveClients(0)
	}
}

// connState holds the per-connection detection pipeline state: the last
// calibrated intrinsics and whatever the most recent BEGIN_DETECTION
// produced, pending delivery on the next END_DETECTION.
type connState struct {
	intrinsics     message.Intrinsics
	haveIntrinsics bool
	skeletons      []Skeleton
	mask           *message.BinaryMask
	havePending    bool
}

func (s *Service) serveConn(conn net.Conn) {
	defer conn.Close()
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Info("client_connected")

	st := &connState{}
	for {
		var ctrl message.SimpleInt
		ok, err := netio.ReadMessage(conn, &ctrl, s.stop)
		if err != nil || !ok {
			logger.Info("client_disconnected")
			return
		}

		switch ctrl.Value() {
		case message.ControlBeginDetection:
			if err := s.handleBeginDetection(conn, st, logger); err != nil {
				logger.Warn("begin_detection_failed", "error", err)
				return
			}
		case message.ControlEndDetection:
			if err := s.handleEndDetection(conn, st, logger); err != nil {
				logger.Warn("end_detection_failed", "error", err)
				return
			}
		case message.ControlSetCalibration:
			if err := s.handleSetCalibration(conn, st, logger); err != nil {
				logger.Warn("set_calibration_failed", "error", err)
				return
			}
		default:
			metrics.IncMalformed()
			logger.Warn("unknown_control", "value", ctrl.Value())
			return
		}
	}
}

func (s *Service) handleBeginDetection(conn net.Conn, st *connState, logger *slog.Logger) error {
	// The skeleton protocol always uses two slots (colour + depth),
	// matching Calibration's fixed max_images.
	header := message.NewFrameHeader(message.DefaultMaxImages)
	ok, err := netio.ReadMessage(conn, header, s.stop)
	if err != nil || !ok {
		return fmt.Errorf("read frame header: %w", err)
	}

	sizes := make([]int, header.NumImages())
	for i, sz := range header.ImageByteSizes() {
		sizes[i] = int(sz)
	}
	frame := message.NewFrame(sizes)
	ok, err = netio.ReadMessage(conn, frame, s.stop)
	if err != nil || !ok {
		return fmt.Errorf("read frame: %w", err)
	}

	if ok, err := netio.WriteMessage(conn, message.Ack{}); err != nil || !ok {
		return fmt.Errorf("write ack: %w", err)
	}
	metrics.IncFramesReceived()

	toProcess := frame
	if s.decompress != nil {
		toProcess = s.decompress(frame)
	}

	skeletons, mask := s.process(toProcess, st.intrinsics)
	if mask == nil && s.renderMask != nil {
		shape := header.ImageShapes()[0]
		mask = s.renderMask(skeletons, st.intrinsics, int(shape.Height), int(shape.Width))
	}

	st.skeletons = skeletons
	st.mask = mask
	st.havePending = true
	logger.Info("detection_ready", "num_skeletons", len(skeletons))
	return nil
}

func (s *Service) handleEndDetection(conn net.Conn, st *connState, logger *slog.Logger) error {
	if !st.havePending {
		// END before BEGIN: silently do nothing, matching the reference
		// service's behaviour.
		return nil
	}

	data := []byte(Encode(st.skeletons))
	length := message.NewSimpleInt(int32(len(data)))
	if ok, err := netio.WriteMessage(conn, length); err != nil || !ok {
		return fmt.Errorf("write length: %w", err)
	}
	blob := message.NewData(len(data))
	copy(blob.Buf(), data)
	if ok, err := netio.WriteMessage(conn, blob); err != nil || !ok {
		return fmt.Errorf("write data: %w", err)
	}
	if st.mask != nil {
		if ok, err := netio.WriteMessage(conn, st.mask); err != nil || !ok {
			return fmt.Errorf("write mask: %w", err)
		}
	}

	metrics.IncSkeletonSent()
	st.skeletons = nil
	st.mask = nil
	st.havePending = false
	logger.Info("delivered")
	return nil
}

func (s *Service) handleSetCalibration(conn net.Conn, st *connState, logger *slog.Logger) error {
	calib := message.NewCalibration(message.DefaultMaxImages)
	ok, err := netio.ReadMessage(conn, calib, s.stop)
	if err != nil || !ok {
		return fmt.Errorf("read calibration: %w", err)
	}
	intr := calib.Intrinsics()
	if len(intr) > 0 {
		st.intrinsics = intr[0]
		st.haveIntrinsics = true
	}
	if ok, err := netio.WriteMessage(conn, message.Ack{}); err != nil || !ok {
		return fmt.Errorf("write ack: %w", err)
	}
	logger.Info("calibration_set")
	return nil
}

// Shutdown stops accepting connections and signals the active connection
// handler, if any, to terminate on its next read timeout.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.logger.Info("shutting_down")

	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTerminated, ctx.Err())
	case <-done:
		return nil
	}
}
