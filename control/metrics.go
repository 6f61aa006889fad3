// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus instrumentation of the relay. Delivery failures are counted,
// never reported back to the sender.

package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "relay"

// Splice directions.
const (
	DirectionInbound  = "inbound"  // peer -> local output
	DirectionOutbound = "outbound" // local input -> peer
)

// Metrics holds the relay collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	accepted            prometheus.Counter
	acceptErrors        prometheus.Counter
	broadcastChunks     prometheus.Counter
	broadcastDeliveries prometheus.Counter
	broadcastFailures   prometheus.Counter
	teardowns           prometheus.Counter
	splicedBytes        *prometheus.CounterVec
	clients             prometheus.Gauge
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "accepted_total",
			Help: "Peers accepted in server mode.",
		}),
		acceptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "accept_errors_total",
			Help: "Failed accept attempts.",
		}),
		broadcastChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_chunks_total",
			Help: "Chunks read from local input in server mode.",
		}),
		broadcastDeliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_deliveries_total",
			Help: "Chunks fully written to a peer.",
		}),
		broadcastFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_failures_total",
			Help: "Failed or short broadcast writes; each tears its peer down.",
		}),
		teardowns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "teardowns_total",
			Help: "Paired pipe teardowns.",
		}),
		splicedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "spliced_bytes_total",
			Help: "Bytes forwarded, by direction.",
		}, []string{"direction"}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "clients",
			Help: "Peers currently connected.",
		}),
	}
}

func (m *Metrics) Accepted() {
	if m != nil {
		m.accepted.Inc()
		m.clients.Inc()
	}
}

func (m *Metrics) AcceptError() {
	if m != nil {
		m.acceptErrors.Inc()
	}
}

func (m *Metrics) BroadcastChunk() {
	if m != nil {
		m.broadcastChunks.Inc()
	}
}

// Delivered records a broadcast write of n bytes to one peer.
func (m *Metrics) Delivered(n int) {
	if m != nil {
		m.broadcastDeliveries.Inc()
		m.splicedBytes.WithLabelValues(DirectionOutbound).Add(float64(n))
	}
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.broadcastFailures.Inc()
	}
}

// Spliced records n bytes forwarded in direction.
func (m *Metrics) Spliced(direction string, n int) {
	if m != nil && n > 0 {
		m.splicedBytes.WithLabelValues(direction).Add(float64(n))
	}
}

// Teardown records a paired teardown. peer is set when it removed a
// connected client.
func (m *Metrics) Teardown(peer bool) {
	if m == nil {
		return
	}
	m.teardowns.Inc()
	if peer {
		m.clients.Dec()
	}
}

// ServeMetrics exposes g on addr until ctx is done. It returns once the
// listener is closed.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
