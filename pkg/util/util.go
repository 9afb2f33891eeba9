package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func ConvertList[A any, B any](listA []A, convert func(A) B) []B {
	listB := make([]B, len(listA))
	for i, a := range listA {
		listB[i] = convert(a)
	}

	return listB
}

func SliceIncludes[T comparable](values []T, value T) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// HasDuplicates reports whether any value appears more than once.
func HasDuplicates[T comparable](values []T) bool {
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

// Ptr returns pointer of any value.
func Ptr[T any](t T) *T {
	return &t
}

// Val returns value if pointer is not null, otherwise it returns zero.
func Val[T any](t *T) T {
	if t != nil {
		return *t
	}

	var def T
	return def
}

// NewTimeoutContext detaches from parent's cancellation but keeps its values.
func NewTimeoutContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

func GetHistogramVec(name string, labels ...string) (*prometheus.HistogramVec, error) {
	metrics := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: name,
		Buckets: []float64{
			0.0005,
			0.001, // 1ms
			0.002,
			0.005,
			0.01, // 10ms
			0.02,
			0.05,
			0.1, // 100 ms
			0.2,
			0.5,
			1.0, // 1s
			2.0,
			5.0,
			10.0, // 10s
			30.0,
			60.0,
		},
	}, labels)
	return register(metrics)
}

func GetCounterVec(name string, labels ...string) (*prometheus.CounterVec, error) {
	return register(prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labels))
}

func GetGauge(name string) (prometheus.Gauge, error) {
	return register(prometheus.NewGauge(prometheus.GaugeOpts{Name: name}))
}

func register[C prometheus.Collector](metrics C) (C, error) {
	if err := prometheus.Register(metrics); err != nil {
		var registeredErr prometheus.AlreadyRegisteredError
		if ok := errors.As(err, &registeredErr); ok {
			existing, ok := registeredErr.ExistingCollector.(C)
			if ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register: %w %T", err, err)
	}

	return metrics, nil
}
