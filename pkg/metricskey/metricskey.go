// Package metricskey provides metric descriptions for the tool router.
package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool", "transport"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool", "kind"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls to unknown tools",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_retried",
		Help:         "stats_tool_calls_retried provides total tool call attempts retried",
		RequiredTags: []string{"tool", "transport"},
	}

	StatsTransportFailures = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_transport_failures",
		Help:         "stats_transport_failures provides total transport-level failures",
		RequiredTags: []string{"transport", "kind"},
	}

	StatsCatalogRefreshFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_catalog_refresh_failed",
		Help:         "stats_catalog_refresh_failed provides total failed catalog refreshes",
		RequiredTags: []string{"transport"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfCatalogRefresh = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_catalog_refresh",
		Help:         "perf_catalog_refresh provides duration of catalog refresh",
		RequiredTags: []string{"transport"},
	}

	PerfTransportConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_transport_connect",
		Help:         "perf_transport_connect provides duration of transport connect",
		RequiredTags: []string{"transport"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
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
