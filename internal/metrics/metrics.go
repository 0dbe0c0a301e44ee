// Package metrics exports session activity as Prometheus metrics.
//
// A Collector is an engine.Observer; attach it to any number of sessions
// with engine.WithObserver. Counters are labelled by fact type or rule name:
//
//   - ruleunit_facts_inserted_total{type}
//   - ruleunit_facts_retracted_total{type}
//   - ruleunit_facts_updated_total{type}
//   - ruleunit_activations_created_total{rule}
//   - ruleunit_activations_cancelled_total{rule}
//   - ruleunit_rule_firings_total{rule}
//   - ruleunit_action_failures_total{rule}
//   - ruleunit_cycle_exceeded_total{rule}
//   - ruleunit_sessions_open
package metrics

import (
	"fmt"
	"io"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/ruleunit/internal/engine"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ruleunit"

// Collector counts session events.
type Collector struct {
	registry *prometheus.Registry

	factsInserted        *prometheus.CounterVec
	factsRetracted       *prometheus.CounterVec
	factsUpdated         *prometheus.CounterVec
	activationsCreated   *prometheus.CounterVec
	activationsCancelled *prometheus.CounterVec
	firings              *prometheus.CounterVec
	actionFailures       *prometheus.CounterVec
	cycleExceeded        *prometheus.CounterVec
	sessionsOpen         prometheus.Gauge
}

// NewCollector creates and registers the session metrics. A nil registry
// gets a fresh one; an empty namespace uses DefaultNamespace.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	counter := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{label})
	}

	c := &Collector{
		registry:             registry,
		factsInserted:        counter("facts_inserted_total", "Total facts inserted", "type"),
		factsRetracted:       counter("facts_retracted_total", "Total facts retracted", "type"),
		factsUpdated:         counter("facts_updated_total", "Total facts updated", "type"),
		activationsCreated:   counter("activations_created_total", "Total activations placed on the agenda", "rule"),
		activationsCancelled: counter("activations_cancelled_total", "Total activations removed before firing", "rule"),
		firings:              counter("rule_firings_total", "Total rule firings", "rule"),
		actionFailures:       counter("action_failures_total", "Total rule actions that returned an error", "rule"),
		cycleExceeded:        counter("cycle_exceeded_total", "Total FireAll calls stopped by the firing cap", "rule"),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Sessions opened and not yet closed",
		}),
	}

	registry.MustRegister(
		c.factsInserted,
		c.factsRetracted,
		c.factsUpdated,
		c.activationsCreated,
		c.activationsCancelled,
		c.firings,
		c.actionFailures,
		c.cycleExceeded,
		c.sessionsOpen,
	)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe implements engine.Observer.
func (c *Collector) Observe(ev engine.Event) {
	switch ev.Kind {
	case engine.EventSessionOpened:
		c.sessionsOpen.Inc()
	case engine.EventSessionClosed:
		c.sessionsOpen.Dec()
	case engine.EventFactInserted:
		c.factsInserted.WithLabelValues(factType(ev)).Inc()
	case engine.EventFactRetracted:
		c.factsRetracted.WithLabelValues(factType(ev)).Inc()
	case engine.EventFactUpdated:
		c.factsUpdated.WithLabelValues(factType(ev)).Inc()
	case engine.EventActivationCreated:
		c.activationsCreated.WithLabelValues(ev.Rule).Inc()
	case engine.EventActivationCancelled:
		c.activationsCancelled.WithLabelValues(ev.Rule).Inc()
	case engine.EventRuleFired:
		c.firings.WithLabelValues(ev.Rule).Inc()
	case engine.EventActionFailed:
		c.actionFailures.WithLabelValues(ev.Rule).Inc()
	case engine.EventCycleExceeded:
		c.cycleExceeded.WithLabelValues(ev.Rule).Inc()
	}
}

func factType(ev engine.Event) string {
	if ev.Fact == nil {
		return ""
	}
	return ev.Fact.Type
}

// WriteText renders the gathered families in the Prometheus text
// exposition format. Samples that are still zero are left out, and so are
// families with nothing left. Used by `ruleunit run --metrics`.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		mf.Metric = slices.DeleteFunc(mf.Metric, func(m *dto.Metric) bool {
			return sampleValue(mf.GetType(), m) == 0
		})
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}
