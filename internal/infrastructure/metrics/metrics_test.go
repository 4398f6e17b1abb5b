package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.Nil(t, New(nil))

	assert.NotPanics(t, func() {
		m.VoiceEvent("join", true)
		m.Credited(60, 6)
		m.LevelUps(2)
		m.ClockAnomaly()
		m.RoleMutation("add", false)
		m.ReconcileError("hierarchy")
		m.OpenSessions(3)
		m.JobRun("voice_tick", true, time.Second)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.VoiceEvent("leave", true)
	m.VoiceEvent("leave", true)
	m.VoiceEvent("leave", false)
	m.Credited(900, 90)
	m.LevelUps(0)
	m.LevelUps(3)
	m.RoleMutation("remove", false)
	m.OpenSessions(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.voiceEvents.WithLabelValues("leave", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.voiceEvents.WithLabelValues("leave", "error")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.xpGranted))
	assert.Equal(t, 900.0, testutil.ToFloat64(m.voiceSeconds))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.levelUps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roleMutations.WithLabelValues("remove", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.openSessions))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
