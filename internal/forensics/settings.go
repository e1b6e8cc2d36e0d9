package forensics

import (
	"time"

	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/pkg/config"
	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/poll"
	"github.com/vidforensics/backend/pkg/retry"
)

// Settings tunes the pipeline. Zero values fall back to DefaultSettings.
type Settings struct {
	MaxVideoTextChars int
	AssetPoll         poll.Config
	IndexPoll         poll.Config
	UploadRetry       retry.Config
	SearchRetry       retry.Config
	FactCheckWorkers  int
	// RequireTimelineCue skips the timeline reasoning call when the content
	// carries no explicit year, month or date.
	RequireTimelineCue bool
}

func DefaultSettings() Settings {
	return Settings{
		MaxVideoTextChars: 3200,
		AssetPoll: poll.Config{
			Interval:    1500 * time.Millisecond,
			MaxWait:     15 * time.Minute,
			MaxAttempts: 600,
		},
		IndexPoll: poll.Config{
			Interval:    2 * time.Second,
			MaxWait:     15 * time.Minute,
			MaxAttempts: 600,
		},
		UploadRetry: retry.Config{
			MaxAttempts:  4,
			InitialDelay: 1500 * time.Millisecond,
			MaxDelay:     time.Minute,
			Multiplier:   2,
		},
		SearchRetry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2,
		},
		FactCheckWorkers:   1,
		RequireTimelineCue: true,
	}
}

// SettingsFromConfig maps the pipeline section of the service config and
// wires retry and poll hooks into metrics.
func SettingsFromConfig(cfg config.PipelineConfig) Settings {
	s := DefaultSettings()
	if cfg.MaxVideoTextChars > 0 {
		s.MaxVideoTextChars = cfg.MaxVideoTextChars
	}

	for _, p := range []*poll.Config{&s.AssetPoll, &s.IndexPoll} {
		if cfg.PollMaxWaitSec > 0 {
			p.MaxWait = cfg.PollMaxWait()
		}
		if cfg.PollMaxAttempts > 0 {
			p.MaxAttempts = cfg.PollMaxAttempts
		}
		p.OnAttempt = recordPoll
		p.Logger = logger.GetLogger()
	}
	if cfg.AssetPollIntervalMs > 0 {
		s.AssetPoll.Interval = cfg.AssetPollInterval()
	}
	if cfg.IndexPollIntervalMs > 0 {
		s.IndexPoll.Interval = cfg.IndexPollInterval()
	}

	if cfg.UploadRetries > 0 {
		s.UploadRetry.MaxAttempts = cfg.UploadRetries
	}
	if cfg.UploadRetryBaseMs > 0 {
		s.UploadRetry.InitialDelay = cfg.UploadRetryBase()
	}
	if cfg.SearchRetries > 0 {
		s.SearchRetry.MaxAttempts = cfg.SearchRetries
	}
	if cfg.SearchRetryBaseMs > 0 {
		s.SearchRetry.InitialDelay = cfg.SearchRetryBase()
	}
	for _, r := range []*retry.Config{&s.UploadRetry, &s.SearchRetry} {
		r.OnRetry = metrics.RecordRetry
		r.Logger = logger.GetLogger()
	}

	if cfg.FactCheckWorkers > 0 {
		s.FactCheckWorkers = cfg.FactCheckWorkers
	}
	s.RequireTimelineCue = cfg.TimelineRequiresCue
	return s
}

func recordPoll(job string, state poll.State) {
	metrics.PollAttempts.WithLabelValues(job, state.String()).Inc()
}

func withOp(cfg retry.Config, op string) retry.Config {
	cfg.Op = op
	return cfg
}
