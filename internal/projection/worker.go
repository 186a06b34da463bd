package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/event"
	"StrategyVault/internal/observability"

	"github.com/rs/zerolog"
)

// watermarkID names this worker's row in projections.watermark.
const watermarkID = "vault"

// catchUpInterval bounds how long events dropped from the input channel wait
// before they are read back from the log.
const catchUpInterval = 5 * time.Second

// ProjectionWorker maintains the epoch, request and strategy read models
// from emitted events. Its input channel is non-blocking with drop; if it
// falls behind, CatchUp or RebuildProjections restore it from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan command.Output
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan command.Output, metrics *observability.Metrics, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// LastSequence is the highest event sequence applied.
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq }

// LoadWatermark reads the persisted watermark. Call before Run.
func (pw *ProjectionWorker) LoadWatermark(ctx context.Context) error {
	seq, err := loadWatermark(ctx, pw.db)
	if err != nil {
		return err
	}
	pw.lastSeq = seq
	return nil
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(catchUpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := pw.CatchUp(ctx, 0); err != nil {
				pw.logger.Warn().Err(err).Int64("from", pw.lastSeq+1).Msg("projection catch-up failed")
			}

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			if len(output.Events) == 0 {
				continue
			}

			first := output.Events[0].Sequence
			if first > pw.lastSeq+1 {
				// Dropped outputs left a gap; fill it from the log first.
				if err := pw.CatchUp(ctx, first-1); err != nil {
					pw.logger.Warn().Err(err).Int64("from", pw.lastSeq+1).Msg("projection catch-up failed")
					continue
				}
			}

			if err := pw.apply(ctx, output.Events); err != nil {
				// Eventually consistent; the next catch-up retries.
				pw.logger.Warn().Err(err).Int64("sequence", first).Msg("projection update failed")
			}
		}
	}
}

// CatchUp applies persisted events after the watermark, up to and
// including upTo (0 means everything in the log).
func (pw *ProjectionWorker) CatchUp(ctx context.Context, upTo int64) error {
	const page = 500
	for {
		rows, err := loadEvents(ctx, pw.db, pw.lastSeq+1, page)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		envs := make([]event.Envelope, 0, len(rows))
		for _, r := range rows {
			if upTo > 0 && r.Sequence > upTo {
				break
			}
			envs = append(envs, r)
		}
		if len(envs) == 0 {
			return nil
		}
		if err := pw.apply(ctx, envs); err != nil {
			return err
		}
		if len(envs) < len(rows) || len(rows) < page {
			return nil
		}
	}
}

func (pw *ProjectionWorker) apply(ctx context.Context, envs []event.Envelope) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	last := pw.lastSeq
	for _, env := range envs {
		if env.Sequence <= last {
			continue
		}
		if env.Sequence != last+1 {
			// The rest is not in the log yet; a later catch-up applies it.
			break
		}
		if err := applyEvent(ctx, tx, env); err != nil {
			return fmt.Errorf("seq %d %s: %w", env.Sequence, env.EventType, err)
		}
		last = env.Sequence
	}
	if last == pw.lastSeq {
		return nil
	}

	if err := saveWatermark(ctx, tx, last); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	pw.lastSeq = last

	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(watermarkID).Observe(time.Since(start).Seconds())
	}
	return nil
}

func loadWatermark(ctx context.Context, q queryer) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE projection = $1`, watermarkID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func saveWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, watermarkID, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RebuildProjections truncates every projection table and replays the whole
// event log into them.
func RebuildProjections(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	truncateStatements := []string{
		`TRUNCATE projections.epochs`,
		`TRUNCATE projections.epoch_requests`,
		`TRUNCATE projections.strategies`,
		`DELETE FROM projections.watermark WHERE projection = 'vault'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	pw := NewProjectionWorker(db, nil, nil, logger)
	if err := pw.CatchUp(ctx, 0); err != nil {
		return fmt.Errorf("replay event log: %w", err)
	}

	logger.Info().Int64("last_sequence", pw.lastSeq).Msg("projection rebuild complete")
	return nil
}
