package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidforensics/backend/pkg/apperr"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testConfig(rec *sleepRecorder, attempts int) Config {
	return Config{
		Op:           "test.op",
		MaxAttempts:  attempts,
		InitialDelay: 1500 * time.Millisecond,
		MaxDelay:     time.Minute,
		Multiplier:   2,
		Sleep:        rec.sleep,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	for k := 0; k < 4; k++ {
		rec := &sleepRecorder{}
		calls := 0
		got, err := DoWithResult(context.Background(), testConfig(rec, 4), func() (string, error) {
			calls++
			if calls <= k {
				return "", apperr.Transient("search", errors.New("503"))
			}
			return "ok", nil
		})

		require.NoError(t, err)
		require.Equal(t, "ok", got)
		require.Equal(t, k+1, calls)
		require.Len(t, rec.waits, k)
		for i := 1; i < len(rec.waits); i++ {
			require.Greater(t, rec.waits[i], rec.waits[i-1])
		}
	}
}

func TestDoBackoffDoublesFromBase(t *testing.T) {
	rec := &sleepRecorder{}
	err := Do(context.Background(), testConfig(rec, 4), func() error {
		return errors.New("network down")
	})

	require.ErrorIs(t, err, apperr.ErrTransient)
	require.Equal(t, []time.Duration{
		1500 * time.Millisecond,
		3000 * time.Millisecond,
		6000 * time.Millisecond,
	}, rec.waits)
}

func TestDoDoesNotRetryValidationErrors(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	err := Do(context.Background(), testConfig(rec, 4), func() error {
		calls++
		return apperr.Validation("upload", "file is empty")
	})

	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.waits)
}

func TestDoHonoursRetryableErrorList(t *testing.T) {
	errFlaky := errors.New("flaky")
	rec := &sleepRecorder{}
	cfg := testConfig(rec, 3)
	cfg.RetryableErrors = []error{errFlaky}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("something else")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(&sleepRecorder{}, 5)
	cfg.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := Do(ctx, cfg, func() error { return errors.New("boom") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestDoReportsRetries(t *testing.T) {
	var seen []int
	cfg := testConfig(&sleepRecorder{}, 3)
	cfg.OnRetry = func(op string, attempt int, err error) {
		require.Equal(t, "test.op", op)
		seen = append(seen, attempt)
	}
	_ = Do(context.Background(), cfg, func() error { return errors.New("x") })
	require.Equal(t, []int{1, 2}, seen)
}

func TestAddJitterStaysWithinFraction(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := addJitter(base, 0.1)
		require.GreaterOrEqual(t, d, 900*time.Millisecond)
		require.LessOrEqual(t, d, 1100*time.Millisecond)
	}
	require.Equal(t, base, addJitter(base, 0))
}
