package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/logging"
	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/metrics"
	"github.com/sgolodetz/smg-comms-go/internal/queue"
)

// Server accepts mapping client connections, one goroutine per client,
// and exposes newest/oldest-unseen frames per client to the rest of the
// mapping pipeline.
type Server struct {
	addr string

	decompress FrameDecompressor
	policy     queue.OverflowPolicy

	mu           sync.Mutex
	clientReady  sync.Cond
	clients      map[int]*clientHandler
	finished     map[int]struct{}
	nextClientID int

	stop     chan struct{}
	stopOnce sync.Once
	listener net.Listener
	wg       sync.WaitGroup
	readyCh  chan struct{}
	readyOne sync.Once

	logger *slog.Logger
}

const defaultDrainPollInterval = 100 * time.Millisecond

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithListenAddr sets the listen address (default "127.0.0.1:7851").
func WithListenAddr(addr string) ServerOption { return func(s *Server) { s.addr = addr } }

// WithFrameDecompressor installs a decompressor applied to every frame
// received before it is published to the queue and newest-frame cache.
func WithFrameDecompressor(fn FrameDecompressor) ServerOption {
	return func(s *Server) { s.decompress = fn }
}

// WithOverflowPolicy selects the per-client frame queue's overflow policy.
// Defaults to PolicyDiscardOldest, matching the reference server.
func WithOverflowPolicy(p queue.OverflowPolicy) ServerOption {
	return func(s *Server) { s.policy = p }
}

// WithServerLogger overrides the server's logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer constructs a mapping server. Call Serve to start accepting
// connections.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		addr:     "127.0.0.1:7851",
		policy:   queue.PolicyDiscardOldest,
		clients:  make(map[int]*clientHandler),
		finished: make(map[int]struct{}),
		stop:     make(chan struct{}),
		readyCh:  make(chan struct{}),
		logger:   logging.Component("mapping_server"),
	}
	s.clientReady.L = &s.mu
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ready signals once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve binds the listen address and accepts clients until ctx is
// cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(metrics.ErrListen)
		return wrap
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
			wrap := fmt.Errorf("%w: %v", ErrAccept, err)
			metrics.IncError(metrics.ErrAccept)
			return wrap
		}
		s.acceptClient(conn)
	}
}

func (s *Server) acceptClient(conn net.Conn) {
	s.mu.Lock()
	id := s.nextClientID
	s.nextClientID++
	s.mu.Unlock()

	clientLogger := s.logger.With("client_id", id, "remote", conn.RemoteAddr().String())
	clientLogger.Info("accepted")

	handler := newClientHandler(id, conn, s.stop, s.decompress, s.policy, clientLogger)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runClient(id, handler, clientLogger)
	}()
}

func (s *Server) runClient(id int, handler *clientHandler, logger *slog.Logger) {
	defer func() { _ = handler.conn.Close() }()

	logger.Info("starting")
	handler.runPre()
	if !handler.isConnectionOK() {
		metrics.IncHandshakeFailure()
		logger.Warn("handshake_failed")
		s.finishClient(id)
		return
	}

	s.mu.Lock()
	s.clients[id] = handler
	metrics.SetActiveClients(len(s.clients))
	s.clientReady.Broadcast()
	s.mu.Unlock()
	logger.Info("client_ready")

	shuttingDown := false
	for handler.isConnectionOK() {
		select {
		case <-s.stop:
			shuttingDown = true
		default:
		}
		if shuttingDown {
			break
		}
		handler.runIter()
		s.sampleQueueDepth()
	}

	if !shuttingDown {
		logger.Info("draining")
	drainLoop:
		for handler.hasFramesNow() {
			select {
			case <-s.stop:
				break drainLoop
			case <-time.After(defaultDrainPollInterval):
			}
		}
	}

	metrics.IncDisconnect()
	s.finishClient(id)
	logger.Info("stopped")
}

// sampleQueueDepth records the max and average frame queue depth across
// currently-active clients, mirroring the teacher's hub broadcast-time
// queue-depth sampling.
func (s *Server) sampleQueueDepth() {
	s.mu.Lock()
	handlers := make([]*clientHandler, 0, len(s.clients))
	for _, h := range s.clients {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	if len(handlers) == 0 {
		return
	}
	max, sum := 0, 0
	for _, h := range handlers {
		d := h.queueDepth()
		if d > max {
			max = d
		}
		sum += d
	}
	metrics.SetQueueDepth(max, sum/len(handlers))
}

func (s *Server) finishClient(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
	s.finished[id] = struct{}{}
	metrics.SetActiveClients(len(s.clients))
	s.clientReady.Broadcast()
}

// getClientHandler returns the handler for id, waiting for the client to
// start if waitForStart is true and it isn't active or finished yet.
func (s *Server) getClientHandler(id int, waitForStart bool) *clientHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if h, ok := s.clients[id]; ok {
			return h
		}
		if _, ok := s.finished[id]; ok {
			return nil
		}
		select {
		case <-s.stop:
			return nil
		default:
		}
		if !waitForStart {
			return nil
		}
		s.clientReady.Wait()
	}
}

// GetFrame blocks until the given client publishes its next unprocessed
// frame, then passes it to receiver and pops it from the queue.
func (s *Server) GetFrame(clientID int, receiver func(*message.Frame)) {
	if h := s.getClientHandler(clientID, true); h != nil {
		h.getFrame(receiver)
	}
}

// PeekNewestFrame passes the most recently received frame for clientID to
// receiver, returning false if no frame has ever been received.
func (s *Server) PeekNewestFrame(clientID int, receiver func(*message.Frame)) bool {
	h := s.getClientHandler(clientID, true)
	if h == nil {
		return false
	}
	return h.peekNewestFrame(receiver)
}

// GetImageShapes returns the calibrated image shapes for clientID, waiting
// for the client to complete its handshake if it hasn't yet. It returns nil
// if the client has already finished or the server is shutting down.
func (s *Server) GetImageShapes(clientID int) []message.ImageShape {
	h := s.getClientHandler(clientID, true)
	if h == nil {
		return nil
	}
	return h.imageShapes()
}

// GetIntrinsics returns the calibrated camera intrinsics for clientID.
func (s *Server) GetIntrinsics(clientID int) []message.Intrinsics {
	h := s.getClientHandler(clientID, true)
	if h == nil {
		return nil
	}
	return h.intrinsics()
}

// HasFramesNow reports whether clientID currently has an unprocessed
// frame queued. Does not wait for the client to start.
func (s *Server) HasFramesNow(clientID int) bool {
	h := s.getClientHandler(clientID, false)
	return h != nil && h.hasFramesNow()
}

// HasFinished reports whether clientID has disconnected and fully
// drained.
func (s *Server) HasFinished(clientID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.finished[clientID]
	return ok
}

// HasMoreFrames reports the negation of HasFinished.
func (s *Server) HasMoreFrames(clientID int) bool {
	return !s.HasFinished(clientID)
}

// Shutdown stops accepting connections, signals every client handler to
// terminate, and waits for their goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.clientReady.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTerminated, ctx.Err())
	case <-done:
		return nil
	}
}
