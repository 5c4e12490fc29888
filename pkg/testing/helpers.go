// Package testutil provides shared helpers for the service's test suites
package testutil

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// AssertMetricValue validates a Prometheus metric value
func AssertMetricValue(t *testing.T, registry *prometheus.Registry, metricName string, labels map[string]string, expected float64) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				var value float64
				switch mf.GetType() {
				case dto.MetricType_GAUGE:
					value = m.GetGauge().GetValue()
				case dto.MetricType_COUNTER:
					value = m.GetCounter().GetValue()
				case dto.MetricType_HISTOGRAM:
					value = m.GetHistogram().GetSampleSum()
				default:
					t.Fatalf("Unsupported metric type: %v", mf.GetType())
				}

				if value != expected {
					t.Errorf("Metric %s with labels %v: expected %f, got %f", metricName, labels, expected, value)
				}
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// AssertMetricExists checks if a metric exists with given labels
func AssertMetricExists(t *testing.T, registry *prometheus.Registry, metricName string, labels map[string]string) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// labelsMatch checks if metric labels match expected labels
func labelsMatch(metricLabels []*dto.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}

	for _, label := range metricLabels {
		expectedValue, exists := expected[label.GetName()]
		if !exists || expectedValue != label.GetValue() {
			return false
		}
	}

	return true
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for condition: %s", message)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
