package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iota-uz/backoffice/pkg/application"
)

const DefaultPath = "/debug/prometheus"

type PrometheusOption func(*PrometheusController)

// WithRegistry serves metrics from reg instead of the process-wide default
// registry. Scrape counters are registered on reg as well.
func WithRegistry(reg *prometheus.Registry) PrometheusOption {
	return func(c *PrometheusController) {
		c.gatherer = reg
		c.registerer = reg
	}
}

// PrometheusController exposes the grant, gate and audit counters for scraping.
type PrometheusController struct {
	path       string
	gatherer   prometheus.Gatherer
	registerer prometheus.Registerer
}

func NewPrometheusController(path string, opts ...PrometheusOption) application.Controller {
	if path == "" {
		path = DefaultPath
	}
	c := &PrometheusController{
		path:       path,
		gatherer:   prometheus.DefaultGatherer,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	handler := promhttp.InstrumentMetricHandler(c.registerer, promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	r.Handle(c.path, handler).Methods(http.MethodGet)
}
