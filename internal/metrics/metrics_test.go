package metrics

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"daytrader/internal/types"
)

func TestSetStateIsExclusive(t *testing.T) {
	SetState(types.StateHolding)
	SetState(types.StateSellPending)

	assert.Equal(t, testutil.ToFloat64(StateGauge.WithLabelValues(types.StateSellPending.String())), 1.0)
	assert.Equal(t, testutil.ToFloat64(StateGauge.WithLabelValues(types.StateHolding.String())), 0.0)
	assert.Equal(t, testutil.ToFloat64(StateGauge.WithLabelValues(types.StateIdle.String())), 0.0)
}

func TestOrderResult(t *testing.T) {
	before := testutil.ToFloat64(OrdersTotal.WithLabelValues(string(types.SideSell), "failure"))
	OrderResult(types.SideSell, false)
	after := testutil.ToFloat64(OrdersTotal.WithLabelValues(string(types.SideSell), "failure"))
	assert.Equal(t, after-before, 1.0)
}
