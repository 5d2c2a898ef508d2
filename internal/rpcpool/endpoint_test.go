package rpcpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEndpoint_HealthyToDegraded(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	require.Equal(t, Healthy, e.State())

	for i := 0; i < 2; i++ {
		e.RecordFailure(time.Now(), time.Second, time.Minute)
	}
	require.Equal(t, Degraded, e.State())
}

func TestEndpoint_DegradedToQuarantinedOnConsecutiveFail(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	now := time.Now()

	for i := 0; i < 2; i++ {
		e.RecordFailure(now, time.Second, time.Minute)
	}
	require.Equal(t, Degraded, e.State())

	for i := 0; i < consecutiveFailQuarantine; i++ {
		e.RecordFailure(now, time.Second, time.Minute)
	}
	require.Equal(t, Quarantined, e.State())
	require.False(t, e.IsDispatchable(now))
}

func TestEndpoint_QuarantineBackoffDoubles(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	now := time.Now()

	for i := 0; i < consecutiveFailQuarantine; i++ {
		e.RecordFailure(now, time.Second, 32*time.Second)
	}
	first := e.QuarantineUntil().Sub(now)
	require.Equal(t, time.Second, first)

	e.RecordFailure(now, time.Second, 32*time.Second)
	second := e.QuarantineUntil().Sub(now)
	require.Equal(t, 2*time.Second, second)
}

func TestEndpoint_QuarantineBackoffCapsAtMax(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	now := time.Now()

	for i := 0; i < 20; i++ {
		e.RecordFailure(now, time.Second, 10*time.Second)
	}
	require.LessOrEqual(t, e.QuarantineUntil().Sub(now), 10*time.Second)
}

func TestEndpoint_DegradedRecoversOnSuccess(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	for i := 0; i < 2; i++ {
		e.RecordFailure(time.Now(), time.Second, time.Minute)
	}
	require.Equal(t, Degraded, e.State())

	for i := 0; i < 10; i++ {
		e.RecordSuccess(10 * time.Millisecond)
	}
	require.Equal(t, Healthy, e.State())
}

func TestEndpoint_QuarantinedNotDispatchableBeforeRelease(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	now := time.Now()
	for i := 0; i < consecutiveFailQuarantine; i++ {
		e.RecordFailure(now, 10*time.Second, time.Minute)
	}
	require.False(t, e.IsDispatchable(now))
	require.True(t, e.IsDispatchable(now.Add(11*time.Second)))
}

func TestEndpoint_RecordProbeSuccessResetsToHealthy(t *testing.T) {
	e := NewEndpoint("http://a", 1, nil, time.Second)
	now := time.Now()
	for i := 0; i < 5+consecutiveFailQuarantine; i++ {
		e.RecordFailure(now, time.Second, time.Minute)
	}
	require.Equal(t, Quarantined, e.State())

	e.RecordProbeSuccess()
	require.Equal(t, Healthy, e.State())
	require.True(t, e.IsDispatchable(now))
}

func TestPercentile_P95OfSortedSamples(t *testing.T) {
	samples := make([]time.Duration, 0, 100)
	for i := 1; i <= 100; i++ {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	p95 := percentile(samples, 0.95)
	require.Equal(t, 95*time.Millisecond, p95)
}
