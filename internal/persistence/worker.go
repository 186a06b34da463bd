package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StrategyVault/internal/observability"

	"github.com/rs/zerolog"
)

// CoreOutput is one applied command and the events it emitted, as rows.
// The orchestrator (cmd/vaultd) bridges command.Output into this.
type CoreOutput struct {
	Command CommandRow
	Events  []EventRow
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// It runs independently from the runner goroutine. The runner sends with a
// BLOCKING send, so if this worker falls behind the vault stalls and no
// command or event is lost.
type PersistenceWorker struct {
	writer       *EventLogWriter
	inputChan    <-chan CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// batch accumulates rows between flushes.
type batch struct {
	cmds   []CommandRow
	events []EventRow
}

func (b *batch) add(out CoreOutput) {
	b.cmds = append(b.cmds, out.Command)
	b.events = append(b.events, out.Events...)
}

func (b *batch) reset() {
	b.cmds = b.cmds[:0]
	b.events = b.events[:0]
}

// Run batches incoming outputs and flushes when the batch is full or the
// flush timeout expires. It returns after a final flush once ctx is
// cancelled or the input channel is closed.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	b := &batch{
		cmds:   make([]CommandRow, 0, pw.batchSize),
		events: make([]EventRow, 0, pw.batchSize*2),
	}

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	commit := func(reason string) {
		if len(b.cmds) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, b.cmds, b.events); err != nil {
			pw.logger.Error().Err(err).
				Str("trigger", reason).
				Int64("first_index", b.cmds[0].Index).
				Int("commands", len(b.cmds)).
				Msg("batch flush failed")
		}
		b.reset()
	}

	for {
		select {
		case <-ctx.Done():
			pw.finalFlush(b)
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				pw.finalFlush(b)
				return nil
			}
			b.add(output)
			if len(b.cmds) >= pw.batchSize {
				commit("size")
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			commit("timeout")
			timer.Reset(pw.flushTimeout)
		}
	}
}

// finalFlush writes what is left without the cancelled context.
func (pw *PersistenceWorker) finalFlush(b *batch) {
	if len(b.cmds) == 0 {
		return
	}
	if err := pw.flush(context.Background(), b.cmds, b.events); err != nil {
		pw.logger.Error().Err(err).
			Int64("first_index", b.cmds[0].Index).
			Int("commands", len(b.cmds)).
			Msg("final flush failed")
	}
	b.reset()
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled. On cancellation it makes one last attempt with a
// background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, cmds []CommandRow, events []EventRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("commands", len(cmds)).
				Int("events", len(events)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), cmds, events); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		err := pw.flush(ctx, cmds, events)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}

		pw.logger.Debug().Err(err).Msg("persistence flush failed")
		if pw.metrics != nil {
			pw.metrics.PersistRetry.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, cmds []CommandRow, events []EventRow) error {
	start := time.Now()

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteCommandBatch(ctx, tx, cmds); err != nil {
		pw.countError("write_commands")
		return err
	}

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		pw.countError("write_events")
		return err
	}

	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(cmds)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		if len(events) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
		}
	}

	return nil
}

func (pw *PersistenceWorker) countError(stage string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}
