// Package metrics exposes Prometheus counters/gauges for the mapping and
// skeleton-detection services, plus a locally-mirrored Snapshot for cheap
// in-process logging without a scrape round trip.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sgolodetz/smg-comms-go/internal/logging"
)

// Prometheus counters/gauges.
var (
	MappingFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapping_frames_received_total",
		Help: "Total frame messages received by the mapping server from all clients and by the skeleton service.",
	})
	MappingFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapping_frames_sent_total",
		Help: "Total frame messages sent by mapping clients to the server.",
	})
	SkeletonFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skeleton_frames_sent_total",
		Help: "Total skeleton/mask results sent by the detection service to its client.",
	})
	SkeletonResultsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skeleton_results_received_total",
		Help: "Total skeleton/mask results received by the skeleton client.",
	})
	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapping_active_clients",
		Help: "Current number of active mapping clients.",
	})
	QueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frame_queue_depth_max",
		Help: "Observed max queued frames among clients since last sample window.",
	})
	QueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frame_queue_depth_avg",
		Help: "Approximate average queued frames per client in last sample.",
	})
	PoolDiscards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pool_discard_events_total",
		Help: "Total items evicted from a pooled queue under a DISCARD/REPLACE overflow policy.",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handshake_failures_total",
		Help: "Total failed calibration handshakes.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total connections dropped by the skeleton service for an unknown control code.",
	})
	Disconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "client_disconnects_total",
		Help: "Total clients disconnected (clean or on I/O error).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrConnRead  = "conn_read"
	ErrConnWrite = "conn_write"
	ErrHandshake = "handshake"
	ErrAccept    = "accept"
	ErrListen    = "listen"
)

// StartHTTP serves Prometheus metrics at /metrics, plus a /ready probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap in-process logging.
var (
	localFramesReceived  uint64
	localFramesSent      uint64
	localSkeletonSent    uint64
	localSkeletonResults uint64
	localPoolDiscards    uint64
	localHandshakeFail   uint64
	localMalformed       uint64
	localDisconnects     uint64
	localErrors          uint64
	localActiveClients   uint64
	localQDMax           uint64
	localQDAvg           uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesReceived  uint64
	FramesSent      uint64
	SkeletonSent    uint64
	SkeletonResults uint64
	PoolDiscards    uint64
	HandshakeFail   uint64
	Malformed       uint64
	Disconnects     uint64
	Errors          uint64
	ActiveClients   uint64
	QueueDepthMax   uint64
	QueueDepthAvg   uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesReceived:  atomic.LoadUint64(&localFramesReceived),
		FramesSent:      atomic.LoadUint64(&localFramesSent),
		SkeletonSent:    atomic.LoadUint64(&localSkeletonSent),
		SkeletonResults: atomic.LoadUint64(&localSkeletonResults),
		PoolDiscards:    atomic.LoadUint64(&localPoolDiscards),
		HandshakeFail:   atomic.LoadUint64(&localHandshakeFail),
		Malformed:       atomic.LoadUint64(&localMalformed),
		Disconnects:     atomic.LoadUint64(&localDisconnects),
		Errors:          atomic.LoadUint64(&localErrors),
		ActiveClients:   atomic.LoadUint64(&localActiveClients),
		QueueDepthMax:   atomic.LoadUint64(&localQDMax),
		QueueDepthAvg:   atomic.LoadUint64(&localQDAvg),
	}
}

func IncFramesReceived() {
	MappingFramesReceived.Inc()
	atomic.AddUint64(&localFramesReceived, 1)
}

func IncFramesSent() {
	MappingFramesSent.Inc()
	atomic.AddUint64(&localFramesSent, 1)
}

func IncSkeletonSent() {
	SkeletonFramesSent.Inc()
	atomic.AddUint64(&localSkeletonSent, 1)
}

func IncSkeletonResults() {
	SkeletonResultsReceived.Inc()
	atomic.AddUint64(&localSkeletonResults, 1)
}

func IncPoolDiscard() {
	PoolDiscards.Inc()
	atomic.AddUint64(&localPoolDiscards, 1)
}

func IncHandshakeFailure() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandshakeFail, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncDisconnect() {
	Disconnects.Inc()
	atomic.AddUint64(&localDisconnects, 1)
}

func SetActiveClients(n int) {
	ActiveClients.Set(float64(n))
	atomic.StoreUint64(&localActiveClients, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth across
// currently-active clients.
func SetQueueDepth(max, avg int) {
	QueueDepthMax.Set(float64(max))
	QueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrConnRead, ErrConnWrite, ErrHandshake, ErrAccept, ErrListen} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
