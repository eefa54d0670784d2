package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolPending tracks the number of queued tasks per lane.
	PoolPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mb_pool_pending",
		Help: "Current number of queued tasks per lane",
	}, []string{"lane"})

	// PoolExecuted tracks completed tasks per lane.
	PoolExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mb_pool_executed_total",
		Help: "Total tasks executed per lane",
	}, []string{"lane"})

	// PoolTaskPanics tracks tasks that panicked during execution.
	PoolTaskPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_pool_task_panics_total",
		Help: "Tasks that panicked; recovered and logged",
	})

	// PoolEWMAMicros tracks the moving average of per-task wallclock.
	PoolEWMAMicros = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mb_pool_ewma_usec",
		Help: "EWMA of per-task execution time in microseconds",
	})

	// RPCRequests tracks requests routed through dispatch, by op and outcome.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mb_rpc_requests_total",
		Help: "Total RPC requests processed",
	}, []string{"op", "outcome"})

	// RPCSessions tracks accepted pipe sessions.
	RPCSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_rpc_sessions_total",
		Help: "Total pipe sessions accepted",
	})

	// RPCRateLimited tracks requests rejected by the session limiter.
	RPCRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_rpc_rate_limited_total",
		Help: "Requests rejected by the per-session rate limiter",
	})

	// RPCOverflows tracks sessions terminated by the framing cap.
	RPCOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_rpc_frame_overflows_total",
		Help: "Sessions terminated because a request line exceeded the cap",
	})

	// ConfigReloads tracks config (re)loads by source.
	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mb_config_reloads_total",
		Help: "Config loads by source (initial, op, watcher)",
	}, []string{"source"})

	// ConfigSaveFailures tracks failed persistence attempts.
	ConfigSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_config_save_failures_total",
		Help: "Failed attempts to persist the config file",
	})

	// HubClients tracks connected diagnostics websocket clients.
	HubClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mb_hub_clients",
		Help: "Currently connected diagnostics websocket clients",
	})

	// TelemetryEvents tracks events pushed into the telemetry ring.
	TelemetryEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_telemetry_events_total",
		Help: "Events pushed into the telemetry ring",
	})
)
