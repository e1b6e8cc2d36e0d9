package poll

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/apperr"
)

// State is the coarse lifecycle of a remote asynchronous job.
type State int

const (
	Pending State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Config struct {
	Interval    time.Duration
	MaxWait     time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
	OnAttempt   func(job string, state State)
	Logger      *zap.Logger
}

// CheckFunc reports the current state of the job plus the raw remote status
// for logging.
type CheckFunc func(ctx context.Context) (state State, status string, err error)

// Until calls check every Interval until the job is Ready. A Failed state
// yields apperr.ErrAssetProcessingFailed; exceeding MaxWait or MaxAttempts
// yields apperr.ErrTimeout. Errors returned by check abort the wait.
func Until(ctx context.Context, job string, cfg Config, check CheckFunc) error {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	start := cfg.Now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, status, err := check(ctx)
		if err != nil {
			return err
		}
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(job, state)
		}
		cfg.Logger.Debug("Polled job status",
			zap.String("job", job),
			zap.String("status", status),
			zap.Int("attempt", attempt),
		)

		switch state {
		case Ready:
			return nil
		case Failed:
			return apperr.AssetFailed(job, "remote status %q", status)
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return apperr.Timeout(job, "still %q after %d polls", status, attempt)
		}
		if cfg.MaxWait > 0 && cfg.Now().Sub(start)+cfg.Interval > cfg.MaxWait {
			return apperr.Timeout(job, "still %q after %s", status, cfg.Now().Sub(start).Round(time.Millisecond))
		}

		if err := cfg.Sleep(ctx, cfg.Interval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
