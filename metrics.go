package stream

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "stream"

var (
	openStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "open_streams",
			Help:      "Number of registry entries holding a live resource",
		},
		[]string{"wrapper"},
	)
	opensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "opens_total",
			Help:      "Native resource opens",
		},
		[]string{"wrapper"},
	)
	borrowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "borrows_total",
			Help:      "Handles that reused a live resource",
		},
		[]string{"wrapper"},
	)
	closesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "closes_total",
			Help:      "Native resource releases",
		},
		[]string{"wrapper"},
	)
	openFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "open_failures_total",
			Help:      "Failed open hooks",
		},
		[]string{"wrapper"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "notifications_total",
			Help:      "Notifications dispatched to listeners",
		},
		[]string{"event"},
	)
	filterAttachmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "filter_attachments_total",
			Help:      "Filters attached to streams",
		},
		[]string{"filter"},
	)

	collectors = []prometheus.Collector{
		openStreams,
		opensTotal,
		borrowsTotal,
		closesTotal,
		openFailuresTotal,
		notificationsTotal,
		filterAttachmentsTotal,
	}
)

// MetricsTracer records registry activity.
type MetricsTracer interface {
	// Opened is called after a native open on wrapper succeeded.
	Opened(wrapper string)
	// Borrowed is called when a handle reuses a live resource.
	Borrowed(wrapper string)
	// Closed is called after a native resource was released.
	Closed(wrapper string)
	// OpenFailed is called when an open hook returned an error.
	OpenFailed(wrapper string)
	// Notified is called for every dispatched notification.
	Notified(ev Event)
	// FilterAttached is called for every Append/Prepend.
	FilterAttached(filter string)
}

type metricsTracer struct{}

var _ MetricsTracer = &metricsTracer{}

type metricsTracerSetting struct {
	reg prometheus.Registerer
}

// MetricsTracerOption configures NewMetricsTracer.
type MetricsTracerOption func(*metricsTracerSetting)

// WithRegisterer registers the collectors with reg instead of the default
// registerer.
func WithRegisterer(reg prometheus.Registerer) MetricsTracerOption {
	return func(s *metricsTracerSetting) {
		if reg != nil {
			s.reg = reg
		}
	}
}

// NewMetricsTracer returns a prometheus backed MetricsTracer.
func NewMetricsTracer(opts ...MetricsTracerOption) MetricsTracer {
	setting := &metricsTracerSetting{reg: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(setting)
	}
	registerCollectors(setting.reg, collectors...)
	return &metricsTracer{}
}

// registerCollectors ignores duplicate registrations and panics on any
// other error.
func registerCollectors(reg prometheus.Registerer, cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}
}

func (m *metricsTracer) Opened(wrapper string) {
	opensTotal.WithLabelValues(wrapper).Inc()
	openStreams.WithLabelValues(wrapper).Inc()
}

func (m *metricsTracer) Borrowed(wrapper string) {
	borrowsTotal.WithLabelValues(wrapper).Inc()
}

func (m *metricsTracer) Closed(wrapper string) {
	closesTotal.WithLabelValues(wrapper).Inc()
	openStreams.WithLabelValues(wrapper).Dec()
}

func (m *metricsTracer) OpenFailed(wrapper string) {
	openFailuresTotal.WithLabelValues(wrapper).Inc()
}

func (m *metricsTracer) Notified(ev Event) {
	notificationsTotal.WithLabelValues(ev.String()).Inc()
}

func (m *metricsTracer) FilterAttached(filter string) {
	filterAttachmentsTotal.WithLabelValues(filter).Inc()
}
