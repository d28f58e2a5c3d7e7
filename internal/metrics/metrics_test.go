package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())

	m.ObserveTurn("main", "ok", 20*time.Millisecond)
	m.ObserveTurn("main", "ok", 30*time.Millisecond)
	m.IncCommand("command_failed")
	m.IncRateLimited("generate")
	m.AddRemoteRetries("search_read", 2)
	m.AddRemoteRetries("search_read", 0)
	m.IncCacheLookup(true)
	m.IncCacheLookup(false)
	m.SetTrackedClients(4)
	m.IncModelFallback("primary", "backup")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.turns.WithLabelValues("main", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("command_failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rateLimited.WithLabelValues("generate")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.remoteRetries.WithLabelValues("search_read")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.trackedClients))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.modelFallbacks.WithLabelValues("primary", "backup")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("main", "ok", time.Second)
		m.IncCommand("ok")
		m.IncDelegation("main", "sales", "ok")
		m.IncRateLimited("invoke")
		m.ObserveRemoteCall("read", "ok", time.Second)
		m.AddRemoteRetries("read", 1)
		m.IncCacheLookup(true)
		m.SetTrackedClients(1)
		m.ObserveModelCall("gpt-4o-mini", "ok", time.Second)
		m.IncModelFallback("a", "b")
	})
}

func TestMustNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustNew(reg)
	assert.Panics(t, func() { MustNew(reg) })
}
