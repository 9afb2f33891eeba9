package middleware

import (
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type MetricsConfig struct {
	Skipper     Skipper
	Buckets     []float64
	MetricsPath string
}

const notFoundPath = "/not-found"

// DefaultMetricsConfig skips websocket upgrades, whose handler runs for the
// whole life of the connection.
var DefaultMetricsConfig = MetricsConfig{
	Skipper: isUpgrade,
	Buckets: []float64{
		0.001, 0.002, 0.005,
		0.01, 0.02, 0.05,
		0.1, 0.2, 0.5,
		1, 2, 5,
		10, 20, 30,
	},
	MetricsPath: "/metrics",
}

type httpMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func isNotFoundHandler(handler echo.HandlerFunc) bool {
	return reflect.ValueOf(handler).Pointer() == reflect.ValueOf(echo.NotFoundHandler).Pointer()
}

func Metrics() echo.MiddlewareFunc {
	return MetricsWithConfig(DefaultMetricsConfig)
}

// MetricsWithConfig observes request latency per route and counts failed
// calls per error code. It also answers MetricsPath.
func MetricsWithConfig(config MetricsConfig) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultSkipper
	}
	m, err := registerHTTPMetrics(config)
	if err != nil {
		panic(err)
	}

	var promHandler echo.HandlerFunc
	if config.MetricsPath != "" {
		promHandler = echo.WrapHandler(promhttp.Handler())
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if promHandler != nil && req.URL.Path == config.MetricsPath {
				return promHandler(c)
			}
			if config.Skipper(c) {
				return next(c)
			}

			path := c.Path()
			// unmatched paths would explode the label set
			if isNotFoundHandler(c.Handler()) {
				path = notFoundPath
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			m.duration.WithLabelValues(strconv.Itoa(status), req.Method, path).Observe(time.Since(start).Seconds())
			if err != nil {
				m.failures.WithLabelValues(path, errorCode(err)).Inc()
			}
			return err
		}
	}
}

// errorCode names a failure the way the response body does.
func errorCode(err error) string {
	var resp *ResponseError
	if errors.As(err, &resp) && resp.ErrorCode != "" {
		return resp.ErrorCode
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return "http_" + strconv.Itoa(he.Code)
	}
	return models.Code(err).String()
}

func registerHTTPMetrics(config MetricsConfig) (*httpMetrics, error) {
	duration, err := register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "Time spent serving a route",
		Buckets: config.Buckets,
	}, []string{"code", "method", "path"}))
	if err != nil {
		return nil, err
	}
	failures, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Failed API calls by route and error code",
	}, []string{"path", "error_code"}))
	if err != nil {
		return nil, err
	}
	return &httpMetrics{duration: duration, failures: failures}, nil
}

// register returns the already registered collector when there is one.
func register[C prometheus.Collector](c C) (C, error) {
	err := prometheus.Register(c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, err
}
