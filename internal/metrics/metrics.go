// Package metrics exposes Prometheus collectors for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daytrader/internal/types"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daytrader_orders_total",
			Help: "Orders submitted, by side and result.",
		},
		[]string{"side", "result"},
	)
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daytrader_observations_total",
			Help: "Price observations evaluated, by path.",
		},
		[]string{"path"},
	)
	SellGuardRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daytrader_sell_guard_rejections_total",
			Help: "Sell triggers dropped because another path already claimed the sell.",
		},
	)
	StateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "daytrader_state",
			Help: "1 for the current trade state, 0 otherwise.",
		},
		[]string{"state"},
	)
	ProfitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "daytrader_profit_rate",
			Help: "Last evaluated profit rate of the open position.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, ObservationsTotal, SellGuardRejections, StateGauge, ProfitRate)
}

// SetState marks s as the only active state.
func SetState(s types.State) {
	for _, st := range types.AllStates() {
		v := 0.0
		if st == s {
			v = 1
		}
		StateGauge.WithLabelValues(st.String()).Set(v)
	}
}

func OrderResult(side types.Side, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	OrdersTotal.WithLabelValues(string(side), result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
