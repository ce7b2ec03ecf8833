package pacing_test

import (
	"context"
	"testing"
	"time"

	"learn-gateway/pacing"

	"github.com/stretchr/testify/require"
)

func TestSession_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newLimiter(t)

	s := l.NewSession()
	require.Equal(t, pacing.Idle, s.State())

	_, err := s.BeginRound(ctx)
	require.ErrorIs(t, err, pacing.ErrSessionNotActive)

	v, err := s.Start(ctx)
	require.NoError(t, err)
	require.True(t, v.Allowed)
	require.Equal(t, pacing.Active, s.State())

	_, err = s.Start(ctx)
	require.ErrorIs(t, err, pacing.ErrSessionActive)

	for i := 0; i < 10; i++ {
		v, err := s.BeginRound(ctx)
		require.NoError(t, err)
		require.True(t, v.Allowed, "round %d", i+1)
		require.Equal(t, 9-i, v.Remaining)
		clock.Advance(5 * time.Second)
	}
	require.Len(t, l.State(ctx).APICallTimestamps, 10)

	v, err = s.BeginRound(ctx)
	require.NoError(t, err)
	require.False(t, v.Allowed)
	require.Equal(t, pacing.ReasonRounds, v.Reason)
	require.Equal(t, pacing.Blocked, s.State())

	// bloqueada ainda pode encerrar
	require.NoError(t, s.End(ctx))
	require.Equal(t, pacing.Idle, s.State())

	st := l.State(ctx)
	require.NotNil(t, st.LastSessionEnd)
	require.Equal(t, 1, st.DailySessionCounts[clock.Now().Format(pacing.DayLayout)])

	v, err = s.Start(ctx)
	require.NoError(t, err)
	require.False(t, v.Allowed)
	require.Equal(t, pacing.ReasonCooldown, v.Reason)
	require.Equal(t, 2, v.WaitMinutes)

	clock.Advance(2 * time.Minute)
	v, err = s.Start(ctx)
	require.NoError(t, err)
	require.True(t, v.Allowed)
	require.Equal(t, 0, s.Rounds())
}

func TestSession_APIBurstIsTransient(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newLimiter(t)
	for i := 0; i < 15; i++ {
		l.RecordAPICall(ctx)
	}

	s := l.ResumeSession(2)
	v, err := s.BeginRound(ctx)
	require.NoError(t, err)
	require.False(t, v.Allowed)
	require.Equal(t, pacing.ReasonAPIBurst, v.Reason)
	require.Equal(t, pacing.Active, s.State())
	require.Equal(t, 2, s.Rounds())

	clock.Advance(61 * time.Second)
	v, err = s.BeginRound(ctx)
	require.NoError(t, err)
	require.True(t, v.Allowed)
	require.Equal(t, 3, s.Rounds())
}

func TestSession_DailyLimitBlocksStart(t *testing.T) {
	ctx := context.Background()
	l := pacing.New(nil, pacing.WithConfig(pacing.Config{MaxSessionsPerDay: 1}))
	// sem store tudo é permitido
	v, err := l.NewSession().Start(ctx)
	require.NoError(t, err)
	require.True(t, v.Allowed)

	lim, _, _ := newLimiter(t)
	for i := 0; i < 20; i++ {
		lim.IncrementSessionCount(ctx)
	}
	v, err = lim.NewSession().Start(ctx)
	require.NoError(t, err)
	require.False(t, v.Allowed)
	require.Equal(t, pacing.ReasonDaily, v.Reason)
}

func TestResumeSession_AtCeilingIsBlocked(t *testing.T) {
	l, _, _ := newLimiter(t)
	s := l.ResumeSession(10)
	require.Equal(t, pacing.Blocked, s.State())
	require.Equal(t, "blocked", s.State().String())
}
