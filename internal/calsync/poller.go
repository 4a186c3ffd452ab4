package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const submitAttempts = 3

// PollerConfig describes the dependencies of the sync poller.
type PollerConfig struct {
	Client   *Client
	Source   EventSource
	Interval time.Duration
	Logger   *zap.Logger
}

// Poller runs the periodic sync cycle: read the cursor from the forum API,
// fetch calendar changes, push them back. Source failures are reported via
// the error endpoint so the cursor stays put for the next attempt.
type Poller struct {
	client   *Client
	source   EventSource
	interval time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewPoller constructs a poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Client == nil {
		return nil, errors.New("calsync: client is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("calsync: event source is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	} else if interval < time.Second {
		// The cron spec has whole-second resolution.
		interval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:   cfg.Client,
		source:   cfg.Source,
		interval: interval,
		cron:     cron.New(),
		logger:   logger,
	}, nil
}

// Start schedules the periodic sync and runs one cycle immediately.
func (p *Poller) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %ds", int(p.interval.Seconds()))
	if _, err := p.cron.AddFunc(spec, func() {
		if err := p.RunOnce(ctx); err != nil {
			p.logger.Error("sync cycle failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	p.cron.Start()

	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("initial sync cycle failed", zap.Error(err))
	}
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (p *Poller) Stop() {
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
}

// RunOnce executes a single sync cycle.
func (p *Poller) RunOnce(ctx context.Context) error {
	started := time.Now()
	p.logger.Info("starting calendar sync")

	state, err := p.client.GetSyncState(ctx)
	if err != nil {
		return fmt.Errorf("fetching sync state: %w", err)
	}

	var syncToken *string
	if state != nil {
		syncToken = state.SyncToken
	}
	p.logger.Debug("sync state loaded", zap.Bool("incremental", syncToken != nil))

	changes, err := p.source.FetchChanges(ctx, syncToken)
	if err != nil {
		p.logger.Warn("calendar fetch failed", zap.Error(err))
		if recordErr := p.client.RecordSyncError(ctx, err.Error()); recordErr != nil {
			p.logger.Error("recording sync error failed", zap.Error(recordErr))
		}
		return nil
	}

	payloads, err := Normalize(changes.Events)
	if err != nil {
		p.logger.Warn("event normalization failed", zap.Error(err))
		if recordErr := p.client.RecordSyncError(ctx, err.Error()); recordErr != nil {
			p.logger.Error("recording sync error failed", zap.Error(recordErr))
		}
		return nil
	}

	if err := p.submitWithRetry(ctx, payloads, changes.NextSyncToken); err != nil {
		return fmt.Errorf("submitting events: %w", err)
	}

	p.logger.Info("calendar sync finished",
		zap.Int("event_count", len(payloads)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (p *Poller) submitWithRetry(ctx context.Context, payloads []EventPayload, syncToken *string) error {
	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		lastErr = p.client.SubmitEvents(ctx, payloads, syncToken)
		if lastErr == nil {
			return nil
		}
		p.logger.Warn("event submission failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < submitAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return lastErr
}
