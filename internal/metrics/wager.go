package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wagerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "wager_requests_total",
			Help:      "Total wager requests by result and category",
		},
		[]string{"result", "category"},
	)

	wagerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "win5",
			Name:      "wager_request_duration_ms",
			Help:      "Wager request duration in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "category"},
	)

	wagerStakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "win5",
			Name:      "wager_stake_total",
			Help:      "Total accepted stake amount by category and wallet",
		},
		[]string{"category", "wallet"},
	)
)

// RecordWager records business metrics for a wager call.
// result should be "success" or "fail"; category is normalized to lower-case.
func RecordWager(result, category string, started time.Time) {
	res := result
	if res != "success" {
		res = "fail"
	}
	cat := strings.ToLower(category)
	wagerTotal.WithLabelValues(res, cat).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	wagerDuration.WithLabelValues(res, cat).Observe(durMs)
}

// RecordStake 记录已接受注金（category 小写；wallet: "betting" | "combined"）
func RecordStake(category, wallet string, amount float64) {
	wagerStakeTotal.WithLabelValues(strings.ToLower(category), wallet).Add(amount)
}
