package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	// Test that all metrics have valid names and help text
	allMetrics := []*metrics.Describe{
		&PerfCatalogRefresh,
		&PerfToolCall,
		&PerfTransportConnect,
		&StatsCatalogRefreshFailed,
		&StatsToolCallsFailed,
		&StatsToolCallsNotFound,
		&StatsToolCallsRetried,
		&StatsToolCallsSucceeded,
		&StatsTransportFailures,
	}

	for _, m := range allMetrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
	}

	// Test that Metrics slice contains all metrics
	assert.Equal(t, len(allMetrics), len(Metrics), "Metrics slice should contain all defined metrics")

	// Test that Metrics slice is sorted by name
	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	// Test that all metrics in Metrics slice are unique
	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	t.Run("tool metrics have tool tag", func(t *testing.T) {
		toolMetrics := []*metrics.Describe{
			&StatsToolCallsSucceeded,
			&StatsToolCallsFailed,
			&StatsToolCallsNotFound,
			&StatsToolCallsRetried,
			&PerfToolCall,
		}
		for _, m := range toolMetrics {
			assert.Contains(t, m.RequiredTags, "tool", "Tool metric should have tool tag: %s", m.Name)
		}
	})

	t.Run("transport metrics have transport tag", func(t *testing.T) {
		transportMetrics := []*metrics.Describe{
			&StatsTransportFailures,
			&StatsCatalogRefreshFailed,
			&PerfCatalogRefresh,
			&PerfTransportConnect,
		}
		for _, m := range transportMetrics {
			assert.Contains(t, m.RequiredTags, "transport", "Transport metric should have transport tag: %s", m.Name)
		}
	})
}
