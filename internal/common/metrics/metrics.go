package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total number of broadcast attempts by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	BroadcastReadyWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "realtime_broadcast_ready_wait_seconds",
			Help: "Time spent waiting for a channel to reach subscribed state before send",
		},
		[]string{"event_type"},
	)

	ChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_channels_active",
			Help: "Number of live channels tracked by the registry",
		},
	)

	ChannelEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_channel_evictions_total",
			Help: "Channels removed from the registry by reason (idle, explicit, destroy)",
		},
		[]string{"reason"},
	)

	TypingSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_typing_sessions_active",
			Help: "Number of active typing states across all conversations",
		},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of each response pipeline stage",
		},
		[]string{"stage"},
	)

	PipelineResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_results_total",
			Help: "Pipeline invocations by outcome (completed, bypassed, escalated, failed)",
		},
		[]string{"outcome"},
	)
)
