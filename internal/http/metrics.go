package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the API surface and the
// decision loop behind it.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	requestDur    *prometheus.HistogramVec
	turnsTotal    *prometheus.CounterVec
	feedbackTotal *prometheus.CounterVec
	rewards       prometheus.Histogram
	propensities  prometheus.Histogram
}

// NewMetrics creates and registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replyd_http_requests_total",
			Help: "Total HTTP requests by method, endpoint, and status code.",
		}, []string{"method", "endpoint", "status"}),
		requestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "replyd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and endpoint.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "endpoint"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replyd_turns_total",
			Help: "Completed turns by chosen reply style.",
		}, []string{"style"}),
		feedbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replyd_feedback_total",
			Help: "Feedback submissions by outcome.",
		}, []string{"outcome"}),
		rewards: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replyd_feedback_reward",
			Help:    "Distribution of submitted rewards.",
			Buckets: prometheus.LinearBuckets(-1.0, 0.25, 9),
		}),
		propensities: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replyd_turn_propensity",
			Help:    "Propensity of the chosen candidate per turn.",
			Buckets: prometheus.LinearBuckets(0.0, 0.1, 11),
		}),
	}
	reg.MustRegister(
		m.requestsTotal,
		m.requestDur,
		m.turnsTotal,
		m.feedbackTotal,
		m.rewards,
		m.propensities,
	)
	return m
}

// Middleware returns an Echo middleware that records request metrics.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "/"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			m.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
			m.requestDur.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) observeTurn(style string, propensity float64) {
	m.turnsTotal.WithLabelValues(style).Inc()
	m.propensities.Observe(propensity)
}

func (m *Metrics) observeFeedback(outcome string, reward float64) {
	m.feedbackTotal.WithLabelValues(outcome).Inc()
	if outcome == "applied" {
		m.rewards.Observe(reward)
	}
}
