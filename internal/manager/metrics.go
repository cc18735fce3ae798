package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the manager's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	compiles     *prometheus.CounterVec
	compileDur   *prometheus.HistogramVec
	loadDur      *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	classify     *prometheus.CounterVec
	backpressure *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epmgr",
			Name:      "compile_total",
			Help:      "Artifact compilations by device and result",
		}, []string{"device", "result"}),
		compileDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epmgr",
			Name:      "compile_duration_seconds",
			Help:      "Duration of artifact compilations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"device"}),
		loadDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epmgr",
			Name:      "load_duration_seconds",
			Help:      "Duration of context loads in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epmgr",
			Name:      "generated_tokens_total",
			Help:      "Tokens generated by device",
		}, []string{"device"}),
		classify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epmgr",
			Name:      "classify_total",
			Help:      "Classification calls by result",
		}, []string{"result"}),
		backpressure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epmgr",
			Name:      "backpressure_total",
			Help:      "Requests rejected by admission",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.compiles, m.compileDur, m.loadDur, m.tokens, m.classify, m.backpressure)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCompile records one compile attempt.
func (m *Metrics) ObserveCompile(device string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(device, result(err)).Inc()
	m.compileDur.WithLabelValues(device).Observe(d.Seconds())
}

func (m *Metrics) observeLoad(kind Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.loadDur.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) addTokens(device string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokens.WithLabelValues(device).Add(float64(n))
}

func (m *Metrics) observeClassify(err error) {
	if m == nil {
		return
	}
	m.classify.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) rejected(kind Kind) {
	if m == nil {
		return
	}
	m.backpressure.WithLabelValues(string(kind)).Inc()
}
