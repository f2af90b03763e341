// Package metrics exposes process counters for the capture, transcription
// and render pipelines.
package metrics

import (
	"net"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "halo_audio_frames_sent_total",
		Help: "Encoded audio frames written to the transcription connection",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "halo_audio_frames_dropped_total",
		Help: "Audio frames discarded because the send queue was full",
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "halo_audio_bytes_sent_total",
		Help: "PCM bytes sent before base64 encoding",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "halo_server_messages_received_total",
		Help: "Messages received from the transcription service",
	})
	TranscriptFragments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "halo_transcript_fragments_total",
		Help: "Non-empty transcript fragments appended to the buffer",
	})
	RenderedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "halo_render_frames_total",
		Help: "Visualizer frames painted",
	})
	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "halo_connect_duration_seconds",
		Help:    "Time from dial to setup completion",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
	})
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halo_transcription_state",
		Help: "1 for the current transcription state, 0 otherwise",
	}, []string{"state"})
)

// SetState marks state as current in the SessionState gauge.
func SetState(current string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		SessionState.WithLabelValues(s).Set(v)
	}
}

// Serve exposes /metrics and /debug/pprof on addr. It returns once the
// listener is bound; the server runs until the process exits.
func Serve(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	srv := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go srv.Serve(ln)
	return ln.Addr(), nil
}
