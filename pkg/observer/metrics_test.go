package observer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordsTransitionCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ev := Event{
		EntityType:      EntityOnChainState,
		EntityID:        uuid.New(),
		OldState:        "FundsLocked",
		NewState:        "ResultSubmitted",
		PaymentSourceID: uuid.New(),
		Timestamp:       time.Now(),
	}
	m.Notify(ev)
	m.Notify(ev)

	count := testutil.ToFloat64(m.transitions.WithLabelValues(string(EntityOnChainState), "ResultSubmitted"))
	assert.Equal(t, float64(2), count)
}
