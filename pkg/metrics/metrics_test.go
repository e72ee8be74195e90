package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type labels map[string]string

func gather(t *testing.T, reg *prometheus.Registry) []*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	return mfs
}

// sample returns the series of family name whose labels include want, or nil.
func sample(mfs []*dto.MetricFamily, name string, want labels) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, want) {
				return m
			}
		}
	}
	return nil
}

func hasLabels(m *dto.Metric, want labels) bool {
	matched := 0
	for _, pair := range m.GetLabel() {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func counterValue(t *testing.T, mfs []*dto.MetricFamily, name string, want labels) float64 {
	t.Helper()
	m := sample(mfs, name, want)
	if m == nil {
		t.Fatalf("series %s%v not found", name, want)
	}
	return m.GetCounter().GetValue()
}
