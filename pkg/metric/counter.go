package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the kitchen counters.
const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeServerError    = "server_error"
	OutcomeInvalid        = "invalid"
	OutcomeError          = "error"
)

// IncrementalCounter counts labeled events.
type IncrementalCounter interface {
	Increment(val ...string)
}

// Counter is a prometheus backed IncrementalCounter.
type Counter struct {
	Name string
	Help string

	vec *prometheus.CounterVec
}

// Increment adds one to the series identified by the label values.
func (c *Counter) Increment(val ...string) {
	c.vec.WithLabelValues(val...).Inc()
}

// NewCounterWithRegistry registers the counter with reg. It panics if a
// collector with the same name is already registered there.
func NewCounterWithRegistry(reg prometheus.Registerer, name, help string, labels ...string) IncrementalCounter {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)

	reg.MustRegister(counter)

	return &Counter{
		Name: name,
		Help: help,
		vec:  counter,
	}
}

type noop struct{}

func (noop) Increment(...string) {}

// Noop returns a counter that discards every increment.
func Noop() IncrementalCounter {
	return noop{}
}

// GetHandlerForRegistry returns an HTTP handler for serving Prometheus metrics from a custom registry.
func GetHandlerForRegistry(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
