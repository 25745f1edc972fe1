package telemetry

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics definitions, grouped by coordinator component
// (spec.md §4.1-§4.6), labeled by run so multiple coordinator invocations
// in the same process (tests, embedding) don't collide.
var (
	// Dispatch Loop
	TasksClaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_dispatch_tasks_claimed_total",
		Help: "Total tasks claimed by a worker.",
	}, []string{"run"})
	TasksBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_dispatch_tasks_blocked_total",
		Help: "Total tasks moved to blocked (failure cap or impact gate).",
	}, []string{"run"})
	CooldownsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ralph_dispatch_cooldowns_active",
		Help: "Number of tasks currently in a re-check cooldown.",
	}, []string{"run"})
	CreditExhaustionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_dispatch_credit_exhaustions_total",
		Help: "Total detected credit-exhaustion pauses.",
	}, []string{"run"})

	// Worker Pool
	ActiveWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ralph_worker_active",
		Help: "Number of workers currently running a task.",
	}, []string{"run"})
	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ralph_worker_task_duration_seconds",
		Help:    "Wall time of one worker's agent invocation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"run"})
	TasksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_worker_tasks_completed_total",
		Help: "Total tasks a worker finished with at least one commit.",
	}, []string{"run"})

	// Merge Queue
	MergeQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ralph_merge_queue_depth",
		Help: "Entries currently pending in the merge queue.",
	}, []string{"run"})
	MergeSucceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_merge_succeeded_total",
		Help: "Total commits cherry-picked onto the integration branch.",
	}, []string{"run"})
	MergeConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_merge_conflicts_total",
		Help: "Total cherry-pick conflicts hit by the Conflict Resolver.",
	}, []string{"run"})

	// Validation Engine
	ValidationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_validation_runs_total",
		Help: "Total validation plan runs.",
	}, []string{"run"})
	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_validation_failures_total",
		Help: "Total validation plan runs that failed a required check.",
	}, []string{"run"})
	ValidationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ralph_validation_duration_seconds",
		Help:    "Wall time of one validation plan run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"run"})

	// Mainline Sync
	MainSyncSucceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_mainsync_succeeded_total",
		Help: "Total successful mainline syncs.",
	}, []string{"run"})
	MainSyncPendingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ralph_mainsync_pending",
		Help: "Tasks currently blocked on a pending mainline sync retry.",
	}, []string{"run"})

	// System
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ralph_errors_total",
		Help: "Total internal errors by component.",
	}, []string{"run", "component"})
	UptimeSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ralph_uptime_seconds",
		Help: "Coordinator run duration in seconds.",
	}, []string{"run"})
)

var (
	metricsOnce    sync.Once
	metricsMu      sync.Mutex
	metricsRunning bool
)

// StartMetricsServer starts an HTTP server exposing Prometheus metrics. It
// tries 10 consecutive ports starting at basePort before giving up.
func StartMetricsServer(basePort int) error {
	metricsMu.Lock()
	if metricsRunning {
		metricsMu.Unlock()
		return nil
	}
	metricsRunning = true
	metricsMu.Unlock()

	metricsOnce.Do(func() {
		http.Handle("/metrics", promhttp.Handler())
	})

	var listener net.Listener
	var err error

	for i := 0; i < 10; i++ {
		port := basePort + i
		addr := ":" + strconv.Itoa(port)
		listener, err = net.Listen("tcp", addr)
		if err == nil {
			fmt.Fprintf(os.Stderr, "Starting metrics server on %s\n", addr)
			return http.Serve(listener, nil)
		}
	}

	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()
	return fmt.Errorf("failed to find available port starting from %d: %w", basePort, err)
}

// Helper functions, one per metric, mirroring the teacher's TrackX/SetX
// naming.

func TrackTaskClaimed(run string)       { TasksClaimedTotal.WithLabelValues(run).Inc() }
func TrackTaskBlocked(run string)       { TasksBlockedTotal.WithLabelValues(run).Inc() }
func SetCooldownsActive(run string, n int) {
	CooldownsActive.WithLabelValues(run).Set(float64(n))
}
func TrackCreditExhaustion(run string) { CreditExhaustionsTotal.WithLabelValues(run).Inc() }

func SetActiveWorkers(run string, n int) { ActiveWorkers.WithLabelValues(run).Set(float64(n)) }
func ObserveTaskDuration(run string, seconds float64) {
	TaskDurationSeconds.WithLabelValues(run).Observe(seconds)
}
func TrackTaskCompleted(run string) { TasksCompletedTotal.WithLabelValues(run).Inc() }

func SetMergeQueueDepth(run string, n int) { MergeQueueDepth.WithLabelValues(run).Set(float64(n)) }
func TrackMergeSucceeded(run string)       { MergeSucceededTotal.WithLabelValues(run).Inc() }
func TrackMergeConflict(run string)        { MergeConflictsTotal.WithLabelValues(run).Inc() }

func TrackValidationRun(run string)     { ValidationRunsTotal.WithLabelValues(run).Inc() }
func TrackValidationFailure(run string) { ValidationFailuresTotal.WithLabelValues(run).Inc() }
func ObserveValidationDuration(run string, seconds float64) {
	ValidationDurationSeconds.WithLabelValues(run).Observe(seconds)
}

func TrackMainSyncSucceeded(run string) { MainSyncSucceededTotal.WithLabelValues(run).Inc() }
func SetMainSyncPending(run string, n int) {
	MainSyncPendingGauge.WithLabelValues(run).Set(float64(n))
}

func TrackError(run, component string) { ErrorsTotal.WithLabelValues(run, component).Inc() }
func SetUptimeSeconds(run string, seconds float64) {
	UptimeSeconds.WithLabelValues(run).Set(seconds)
}
