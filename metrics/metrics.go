package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// Collector records kernel activity as Prometheus metrics. It implements
// resource.Observer for object lifecycle events and kernel.CallObserver for
// handle calls.
type Collector struct {
	ObjectsCreated   *prometheus.CounterVec
	ObjectsDestroyed *prometheus.CounterVec
	Revocations      *prometheus.CounterVec
	LiveObjects      prometheus.Gauge
	LiveRefs         prometheus.Gauge

	Calls        *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

// New registers the kernel metrics on reg under namespace.
func New(reg prometheus.Registerer, namespace string) (c *Collector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseConfig, errors.KindRegistration).
				Op("register metrics").Detail("%v", r).Build()
		}
	}()

	f := promauto.With(reg)
	return &Collector{
		ObjectsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_created_total",
				Help:      "Total number of capability objects created",
			},
			[]string{"kind"},
		),
		ObjectsDestroyed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_destroyed_total",
				Help:      "Total number of capability objects destroyed",
			},
			[]string{"kind"},
		),
		Revocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revocations_total",
				Help:      "Total number of capability objects revoked",
			},
			[]string{"kind"},
		),
		LiveObjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objects_live",
			Help:      "Capability objects currently alive",
		}),
		LiveRefs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refs_live",
			Help:      "Capability table slots currently referencing an object",
		}),
		Calls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handle_calls_total",
				Help:      "Total number of handle calls",
			},
			[]string{"op", "locality", "result"},
		),
		CallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handle_call_duration_seconds",
				Help:      "Handle call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"locality"},
		),
	}, nil
}

// OnResourceEvent implements resource.Observer.
func (c *Collector) OnResourceEvent(e resource.Event) {
	kind := e.Kind.String()
	switch e.Type {
	case resource.EventCreated:
		c.ObjectsCreated.WithLabelValues(kind).Inc()
		c.LiveObjects.Inc()
		c.LiveRefs.Inc()
	case resource.EventAcquired:
		c.LiveRefs.Inc()
	case resource.EventReleased:
		c.LiveRefs.Dec()
	case resource.EventRevoked:
		c.Revocations.WithLabelValues(kind).Inc()
	case resource.EventDestroyed:
		c.ObjectsDestroyed.WithLabelValues(kind).Inc()
		c.LiveObjects.Dec()
	}
}

// ObserveCall implements kernel.CallObserver.
func (c *Collector) ObserveCall(op string, remote bool, elapsed time.Duration, err error) {
	locality := "local"
	if remote {
		locality = "remote"
	}
	result := "ok"
	if err != nil {
		if kind := errors.KindOf(err); kind != "" {
			result = string(kind)
		} else {
			result = "error"
		}
	}
	c.Calls.WithLabelValues(op, locality, result).Inc()
	c.CallDuration.WithLabelValues(locality).Observe(elapsed.Seconds())
}
