package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/obsquery/internal/logger"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/repository"
)

// GCConfig controls the stale record sweep.
type GCConfig struct {
	Schedule  string
	UnusedTTL time.Duration
	UsedTTL   time.Duration
	BatchSize int
}

// DefaultGCConfig returns the default sweep settings.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Schedule:  "@every 5m",
		UnusedTTL: time.Hour,
		UsedTTL:   24 * time.Hour,
		BatchSize: 500,
	}
}

// Sweeper deletes stale cache records on a cron schedule. Each batch is its
// own short statement; records touched since the batch was selected may
// still go, which readers treat as a vanished record.
type Sweeper struct {
	records repository.QueryRecordRepository
	config  GCConfig
	cron    *cron.Cron
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper. Zero config fields take their defaults.
func NewSweeper(records repository.QueryRecordRepository, config GCConfig, m *metrics.Metrics) *Sweeper {
	def := DefaultGCConfig()
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.UnusedTTL <= 0 {
		config.UnusedTTL = def.UnusedTTL
	}
	if config.UsedTTL <= 0 {
		config.UsedTTL = def.UsedTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &Sweeper{
		records: records,
		config:  config,
		metrics: m,
		logger:  logger.Component(log.Logger, "gc"),
		now:     time.Now,
	}
}

// Sweep deletes stale records batch by batch until a batch comes back short.
func (s *Sweeper) Sweep(ctx context.Context) (deleted int64, err error) {
	defer func() { s.metrics.RecordGC(deleted, err) }()

	now := s.now()
	policy := repository.StalePolicy{
		UnusedBefore: now.Add(-s.config.UnusedTTL).Unix(),
		UsedBefore:   now.Add(-s.config.UsedTTL).Unix(),
	}
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		n, err := s.records.DeleteStale(ctx, policy, s.config.BatchSize)
		if err != nil {
			return deleted, err
		}
		deleted += n
		if n < int64(s.config.BatchSize) {
			return deleted, nil
		}
	}
}

// Start schedules the sweep. ctx bounds every run.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.config.Schedule, func() {
		start := time.Now()
		n, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error().Err(err).Int64("deleted", n).Msg("cache sweep failed")
			return
		}
		s.logger.Info().Int64("deleted", n).Dur("duration", time.Since(start)).Msg("cache sweep complete")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cache sweep %q: %w", s.config.Schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info().Str("schedule", s.config.Schedule).Msg("cache sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info().Msg("cache sweeper stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("cache sweeper stop timed out")
	}
}
