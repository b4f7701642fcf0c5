package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UnitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skycp",
		Name:      "units_total",
		Help:      "Transfer units finished, by direction and outcome.",
	}, []string{"direction", "outcome"})
	BytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skycp",
		Name:      "bytes_total",
		Help:      "Bytes of successfully transferred units, by direction.",
	}, []string{"direction"})
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skycp",
		Name:      "jobs_total",
		Help:      "Transfer jobs finished, by direction and final state.",
	}, []string{"direction", "state"})
)

var initOnce sync.Once

// Init registers collectors; safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(UnitsTotal, BytesTotal, JobsTotal)
	})
}

// Handler serves the registered collectors.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve starts a /metrics server on the given addr (e.g., ":9090"). Blocks; run in a goroutine.
func Serve(addr string) error {
	return http.ListenAndServe(addr, Handler())
}

// RecordUnit counts one finished unit. Failed units add no bytes.
func RecordUnit(direction string, size int64, err error) {
	if err != nil {
		UnitsTotal.WithLabelValues(direction, "failed").Inc()
		return
	}
	UnitsTotal.WithLabelValues(direction, "completed").Inc()
	BytesTotal.WithLabelValues(direction).Add(float64(size))
}

// RecordJob counts one finished job.
func RecordJob(direction, state string) {
	JobsTotal.WithLabelValues(direction, state).Inc()
}
