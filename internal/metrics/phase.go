package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	phaseTransitionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "round_phase_transitions_total",
			Help:      "Total round phase transitions by phase and source",
		},
		[]string{"phase", "source"},
	)

	cashbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "cashback_credits_total",
			Help:      "Total cashback credit operations by kind and result",
		},
		[]string{"kind", "result"},
	)

	cashbackAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "cashback_amount_total",
			Help:      "Total cashback amount credited by kind",
		},
		[]string{"kind"},
	)
)

// RecordPhaseTransition 记录阶段流转
// source: "timer"（定时推进） | "admin"（管理指令） | "recovery"（启动恢复）
func RecordPhaseTransition(phase, source string) {
	phaseTransitionTotal.WithLabelValues(strings.ToLower(phase), source).Inc()
}

// RecordCashback 记录返现操作
// kind: "daily"（每日摊还发放） | "immediate"（combined 输单即时返现） | "reconcile"（9日回溯补偿）
// result: "success" | "duplicate" | "fail"
func RecordCashback(kind, result string, amount float64) {
	cashbackTotal.WithLabelValues(kind, result).Inc()
	if result == "success" && amount > 0 {
		cashbackAmount.WithLabelValues(kind).Add(amount)
	}
}
