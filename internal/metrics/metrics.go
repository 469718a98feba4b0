package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mpc_device"

var (
	metricsOnce sync.Once

	computeDurationHist *prometheus.HistogramVec
	pollCycleCounter    *prometheus.CounterVec
	settlementCounter   *prometheus.CounterVec
	trackedGauge        prometheus.Gauge
	flowDurationHist    *prometheus.HistogramVec
)

func ensure() {
	metricsOnce.Do(func() {
		computeDurationHist = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Latency of local MPC compute steps by operation kind",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind", "outcome"})

		pollCycleCounter = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Pending-operation list calls issued by poll sessions",
		}, []string{"outcome"})

		settlementCounter = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settled bridged operations by outcome and error code",
		}, []string{"outcome", "code"})

		trackedGauge = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_operations",
			Help:      "Operations retained by the tracker while in flight",
		})

		flowDurationHist = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "End-to-end duration of orchestrated lifecycle flows",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"flow", "state"})
	})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCompute 记录一次本地计算耗时
func ObserveCompute(kind string, d time.Duration, err error) {
	ensure()
	computeDurationHist.WithLabelValues(kind, outcome(err)).Observe(d.Seconds())
}

// IncPollCycle 记录一次轮询
func IncPollCycle(err error) {
	ensure()
	pollCycleCounter.WithLabelValues(outcome(err)).Inc()
}

// IncSettlement 记录一次结算
func IncSettlement(resolved bool, code string) {
	ensure()
	o := "resolved"
	if !resolved {
		o = "rejected"
	}
	settlementCounter.WithLabelValues(o, code).Inc()
}

// TrackedInc 新增一个跟踪中的操作；多个 Tracker 共享同一 gauge
func TrackedInc() {
	ensure()
	trackedGauge.Inc()
}

func TrackedDec() {
	ensure()
	trackedGauge.Dec()
}

// ObserveFlow 记录一次编排流程耗时
func ObserveFlow(flow string, state string, d time.Duration) {
	ensure()
	flowDurationHist.WithLabelValues(flow, state).Observe(d.Seconds())
}
