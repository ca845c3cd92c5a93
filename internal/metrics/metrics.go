// Package metrics exposes the engine counters to prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "sniffjoke"

// Recorder owns a private registry. Every method is a no-op on a nil
// Recorder so the engine can run without metrics.
type Recorder struct {
	registry *prometheus.Registry

	packetsIn      *prometheus.CounterVec
	packetsOut     *prometheus.CounterVec
	hacksApplied   *prometheus.CounterVec
	derivedDropped *prometheus.CounterVec
	malformedIn    prometheus.Counter
	bypassed       prometheus.Counter
	queued         prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		packetsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_in_total",
			Help:      "Packets accepted by the engine by source and protocol",
		}, []string{"source", "proto"}),
		packetsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_out_total",
			Help:      "Packets released for transmission by source",
		}, []string{"source"}),
		hacksApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hacks_applied_total",
			Help:      "Derived packets produced by strategy and scramble",
		}, []string{"hack", "scramble"}),
		derivedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_dropped_total",
			Help:      "Derived packets discarded before transmission by reason",
		}, []string{"reason"}),
		malformedIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_in_total",
			Help:      "Datagrams that could not be parsed and were forwarded untouched",
		}),
		bypassed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bypassed_total",
			Help:      "Tunnel segments left untouched by a bypass rule",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_packets",
			Help:      "Packets currently held in the priority queue",
		}),
	}

	r.registry.MustRegister(
		r.packetsIn,
		r.packetsOut,
		r.hacksApplied,
		r.derivedDropped,
		r.malformedIn,
		r.bypassed,
		r.queued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) PacketIn(source, proto string) {
	if r == nil {
		return
	}
	r.packetsIn.WithLabelValues(source, proto).Inc()
}

func (r *Recorder) PacketOut(source string) {
	if r == nil {
		return
	}
	r.packetsOut.WithLabelValues(source).Inc()
}

func (r *Recorder) HackApplied(hack, scramble string) {
	if r == nil {
		return
	}
	r.hacksApplied.WithLabelValues(hack, scramble).Inc()
}

func (r *Recorder) DerivedDropped(reason string) {
	if r == nil {
		return
	}
	r.derivedDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) MalformedIn() {
	if r == nil {
		return
	}
	r.malformedIn.Inc()
}

func (r *Recorder) Bypassed() {
	if r == nil {
		return
	}
	r.bypassed.Inc()
}

func (r *Recorder) SetQueued(n int) {
	if r == nil {
		return
	}
	r.queued.Set(float64(n))
}

func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// Serve exposes Handler on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
