package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "settlement_runs_total",
			Help:      "Total round settlements by result and winning value",
		},
		[]string{"result", "winning_value"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "win5",
			Name:      "settlement_duration_ms",
			Help:      "Round settlement duration in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)

	winningSelectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "winning_selection_total",
			Help:      "Winning value selections by mode (exposure|forced|random)",
		},
		[]string{"mode", "winning_value"},
	)
)

// RecordSettlement 记录一次回合结算
// result: "success" | "skipped" | "fail"
func RecordSettlement(result string, winningValue int8, started time.Time) {
	wv := strconv.Itoa(int(winningValue))
	settlementTotal.WithLabelValues(result, wv).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	settlementDuration.WithLabelValues(result).Observe(durMs)
}

// RecordWinningSelection 记录开奖值的选择方式
// mode: "exposure"（最小敞口） | "forced"（强制指令） | "random"（无注随机）
func RecordWinningSelection(mode string, winningValue int8) {
	winningSelectionTotal.WithLabelValues(mode, strconv.Itoa(int(winningValue))).Inc()
}
