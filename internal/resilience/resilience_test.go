package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("503"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_PermanentNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return errors.New("soap fault: bad token")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(2), func(context.Context) error {
		calls++
		return syscall.ECONNREFUSED
	})
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal(t *testing.T) {
	v, err := DoVal(context.Background(), fastRetry(2), func(context.Context) ([]string, error) {
		return []string{"https://x/a.zip"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/a.zip"}, v)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, backoff(5, cfg))
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(5, 100, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{NewTransientError(errors.New("x"), 502), true},
		{fmt.Errorf("wrap: %w", syscall.ECONNRESET), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("soap fault"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), fmt.Sprint(tt.err))
	}
	assert.True(t, IsTransientHTTPStatus(503))
	assert.False(t, IsTransientHTTPStatus(404))
}

func TestBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var changes []string
	b := NewBreaker(2, time.Minute, func(from, to BreakerState) {
		changes = append(changes, from.String()+"->"+to.String())
	})
	b.now = func() time.Time { return now }
	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, Closed, b.State())
	assert.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, Open, b.State())

	assert.ErrorIs(t, b.Execute(ctx, ok), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, changes)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second, nil)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Error(t, b.Execute(ctx, func(context.Context) error { return errors.New("x") }))
	now = now.Add(time.Second)
	assert.Error(t, b.Execute(ctx, func(context.Context) error { return errors.New("x") }))
	assert.Equal(t, Open, b.State())
}
