package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, "credit", Direction(true))
	assert.Equal(t, "debit", Direction(false))
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(TransactionsRecorded.WithLabelValues("daily_login", "credit"))
	TransactionsRecorded.WithLabelValues("daily_login", "credit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TransactionsRecorded.WithLabelValues("daily_login", "credit")))

	runs := testutil.ToFloat64(SweepRuns.WithLabelValues("aborted"))
	SweepRuns.WithLabelValues("aborted").Inc()
	assert.Equal(t, runs+1, testutil.ToFloat64(SweepRuns.WithLabelValues("aborted")))
}

func TestLockWaitRegistered(t *testing.T) {
	LockWait.WithLabelValues("memory").Observe(0.001)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(LockWait), 1)
}
