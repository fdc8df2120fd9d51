package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the streaming gateway.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	playlistsServedTotal *prometheus.CounterVec
	segmentsServedTotal  prometheus.Counter
	rejectionsTotal      *prometheus.CounterVec
	viewsRecordedTotal   prometheus.Counter
	rangeBytesTotal      prometheus.Counter
	activeRangeStreams   prometheus.Gauge
	episodeCacheEntries  prometheus.Gauge
	requestDuration      *prometheus.HistogramVec
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	playlistsServedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_playlists_served_total",
		Help: "Signed playlists returned, by asset kind",
	}, []string{"kind"})
	segmentsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_segments_served_total",
		Help: "Signed segment or manifest files released to callers",
	})
	rejectionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_access_rejections_total",
		Help: "Requests refused by the segment authorizer, by reason",
	}, []string{"reason"})
	viewsRecordedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_views_recorded_total",
		Help: "View counter increments that reached the counter store",
	})
	rangeBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_range_bytes_streamed_total",
		Help: "Bytes written by the legacy range streamer",
	})
	activeRangeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_active_range_streams",
		Help: "Legacy range streams currently holding a connection",
	})
	episodeCacheEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_episode_cache_entries",
		Help: "Episode chains currently held in the lookup cache",
	})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hls_request_duration_seconds",
		Help:    "Time to first byte plus body for HTTP requests, by route pattern",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 10, 60},
	}, []string{"route"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		playlistsServedTotal,
		segmentsServedTotal,
		rejectionsTotal,
		viewsRecordedTotal,
		rangeBytesTotal,
		activeRangeStreams,
		episodeCacheEntries,
		requestDuration,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		playlistsServedTotal: playlistsServedTotal,
		segmentsServedTotal:  segmentsServedTotal,
		rejectionsTotal:      rejectionsTotal,
		viewsRecordedTotal:   viewsRecordedTotal,
		rangeBytesTotal:      rangeBytesTotal,
		activeRangeStreams:   activeRangeStreams,
		episodeCacheEntries:  episodeCacheEntries,
		requestDuration:      requestDuration,
	}
}

// All recording methods are nil-safe so handlers can run without metrics in tests.

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// ObserveRequest records how long a request on route took.
func (m *Metrics) ObserveRequest(route string, d time.Duration) {
	if m != nil {
		m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// IncPlaylistsServed counts a rewritten playlist for kind ("movie", "episode").
func (m *Metrics) IncPlaylistsServed(kind string) {
	if m != nil {
		m.playlistsServedTotal.WithLabelValues(kind).Inc()
	}
}

// IncSegmentsServed counts a file released by the segment server.
func (m *Metrics) IncSegmentsServed() {
	if m != nil {
		m.segmentsServedTotal.Inc()
	}
}

// IncRejections counts a refused segment request.
func (m *Metrics) IncRejections(reason string) {
	if m != nil {
		m.rejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// IncViewsRecorded counts a successful view increment.
func (m *Metrics) IncViewsRecorded() {
	if m != nil {
		m.viewsRecordedTotal.Inc()
	}
}

// AddRangeBytes adds n to the streamed bytes counter.
func (m *Metrics) AddRangeBytes(n int64) {
	if m != nil && n > 0 {
		m.rangeBytesTotal.Add(float64(n))
	}
}

// RangeStreamStarted and RangeStreamFinished track the active stream gauge.
func (m *Metrics) RangeStreamStarted() {
	if m != nil {
		m.activeRangeStreams.Inc()
	}
}

func (m *Metrics) RangeStreamFinished() {
	if m != nil {
		m.activeRangeStreams.Dec()
	}
}

// SetEpisodeCacheEntries sets the episode cache gauge. Called on scrape.
func (m *Metrics) SetEpisodeCacheEntries(n int) {
	if m != nil {
		m.episodeCacheEntries.Set(float64(n))
	}
}

// Registry exposes the private registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
