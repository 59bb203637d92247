package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Archiver moves messages older than the retention window from the hot
// store into the archive. Runs never overlap, whether scheduled or
// triggered by hand, and a failed run only gets logged.
type Archiver struct {
	store     core.ArchiveStore
	retention time.Duration
	batchSize int
	now       func() time.Time
	timeout   time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

type ArchiverOption func(*Archiver)

func WithArchiveClock(now func() time.Time) ArchiverOption {
	return func(a *Archiver) { a.now = now }
}

// WithRunTimeout bounds a detached or scheduled run.
func WithRunTimeout(d time.Duration) ArchiverOption {
	return func(a *Archiver) { a.timeout = d }
}

func NewArchiver(store core.ArchiveStore, retention time.Duration, batchSize int, opts ...ArchiverOption) *Archiver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	a := &Archiver{
		store:     store,
		retention: retention,
		batchSize: batchSize,
		now:       time.Now,
		timeout:   10 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.timeout <= 0 {
		a.timeout = 10 * time.Minute
	}
	return a
}

// RunOnce archives everything older than now minus the retention window.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	return a.Archive(ctx, a.now().Add(-a.retention))
}

// RunDetached runs RunOnce on a context that ignores ctx's cancellation
// and is bounded by the run timeout. A client hanging up does not abort an
// on-demand run, and a hung store cannot hold the run lock forever.
func (a *Archiver) RunDetached(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	return a.RunOnce(ctx)
}

// Archive moves every message created strictly before cutoff, batch by
// batch. Each batch is atomic in the store, so a failure part way leaves
// earlier batches archived and the rest hot. Running it twice with the same
// cutoff moves nothing the second time.
func (a *Archiver) Archive(ctx context.Context, cutoff time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff = ceilMicro(cutoff.UTC())
	archivedAt := a.now().UTC().Truncate(time.Microsecond)
	started := time.Now()

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			log.Error().Err(err).Str("module", "app.archiver").Int("archived", total).Msg("archival interrupted")
			return total, domain.ErrArchivalFailure.Wrap(err)
		}
		n, err := a.store.ArchiveBefore(ctx, cutoff, a.batchSize, archivedAt)
		if err != nil {
			log.Error().
				Err(err).
				Str("module", "app.archiver").
				Time("cutoff", cutoff).
				Int("archived", total).
				Msg("archival failed")
			return total, domain.ErrArchivalFailure.Wrap(err)
		}
		total += n
		if n < a.batchSize {
			break
		}
	}

	if total == 0 {
		log.Info().Str("module", "app.archiver").Time("cutoff", cutoff).Msg("no messages to archive")
	} else {
		log.Info().
			Str("module", "app.archiver").
			Time("cutoff", cutoff).
			Int("archived", total).
			Dur("took", time.Since(started)).
			Msg("archived messages")
	}
	return total, nil
}

// Start schedules RunOnce with a standard five field cron expression,
// evaluated in UTC.
func (a *Archiver) Start(schedule string) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, a.scheduledRun); err != nil {
		return domain.ErrInvalidRequest.WithMessage("bad archive schedule").Wrap(err)
	}
	a.cron = c
	c.Start()
	log.Info().Str("module", "app.archiver").Str("schedule", schedule).Msg("archival scheduled")
	return nil
}

func (a *Archiver) scheduledRun() {
	// Errors are logged inside; the next tick retries.
	_, _ = a.RunDetached(context.Background())
}

// Stop halts the schedule and waits for a running job, at most until ctx
// is done.
func (a *Archiver) Stop(ctx context.Context) {
	if a.cron == nil {
		return
	}
	select {
	case <-a.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Str("module", "app.archiver").Msg("stop timed out with a run in flight")
	}
}

func ceilMicro(t time.Time) time.Time {
	tr := t.Truncate(time.Microsecond)
	if tr.Before(t) {
		return tr.Add(time.Microsecond)
	}
	return tr
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Str("module", "app.archiver").Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Str("module", "app.archiver").Fields(keysAndValues).Msg(msg)
}
