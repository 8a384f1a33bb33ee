package replan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.viam.com/rhplanner/utils"
)

// ticks averaged by the recent latency gauge.
const recentTickWindow = 20

// Metrics records planning loop telemetry.
type Metrics struct {
	ticks        *prometheus.CounterVec
	failures     *prometheus.CounterVec
	replans      prometheus.Counter
	trajectories prometheus.Counter
	tickDuration prometheus.Histogram
	recentTick   prometheus.Gauge
	recent       *utils.RollingAverage
}

// NewMetrics registers the planner metrics with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhplanner_ticks_total",
				Help: "Planning ticks by planner state at tick start",
			},
			[]string{"state"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhplanner_failures_total",
				Help: "Degraded planning outcomes by kind",
			},
			[]string{"kind"},
		),
		replans: factory.NewCounter(prometheus.CounterOpts{
			Name: "rhplanner_replans_total",
			Help: "Replans triggered by reaching the commit target",
		}),
		trajectories: factory.NewCounter(prometheus.CounterOpts{
			Name: "rhplanner_trajectories_total",
			Help: "Trajectories published to the follower",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rhplanner_tick_duration_seconds",
			Help:    "Wall time spent in one planning tick",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		recentTick: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rhplanner_tick_duration_recent_seconds",
			Help: "Mean wall time of the most recent planning ticks",
		}),
		recent: utils.NewRollingAverage(recentTickWindow),
	}
}

func (m *Metrics) observeTick(state PlannerState, d time.Duration) {
	m.ticks.WithLabelValues(state.String()).Inc()
	m.tickDuration.Observe(d.Seconds())
	m.recent.Add(d.Seconds())
	m.recentTick.Set(m.recent.Average())
}

func (m *Metrics) observeFailure(err error) {
	m.failures.WithLabelValues(failureKind(err)).Inc()
}
