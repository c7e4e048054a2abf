package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordNotification(nil)
	c.RecordNotification(errors.New("x"))
	c.RecordNotification(nil)
	c.RecordHandler("gpa", time.Millisecond, nil)
	c.RecordHandler("risk", time.Millisecond, errors.New("x"))
	c.RecordCompletion("SCALE_10", "A", time.Millisecond)
	c.RecordAlert("CRITICAL", "PROBATION")
	c.RecordStandingChange("NORMAL", "PROBATION")
	c.RecordHTTP("GET", "/health", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.notifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handlerFailures.WithLabelValues("risk")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.handlerFailures.WithLabelValues("gpa")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completions.WithLabelValues("SCALE_10", "A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsRequested.WithLabelValues("CRITICAL", "PROBATION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.standingChanges.WithLabelValues("NORMAL", "PROBATION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/health", "200")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordNotification(nil)
		c.RecordHandler("gpa", time.Second, nil)
		c.RecordCompletion("SCALE_4", "B", time.Second)
		c.RecordLockWait(time.Second)
		c.RecordHTTP("GET", "/", 500, time.Second)
	})
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
