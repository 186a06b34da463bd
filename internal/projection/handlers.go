package projection

import (
	"context"
	"database/sql"

	"StrategyVault/internal/event"
	"StrategyVault/internal/persistence"
)

// loadEvents reads and decodes persisted events starting at from.
func loadEvents(ctx context.Context, db *sql.DB, from int64, limit int) ([]event.Envelope, error) {
	rows, err := persistence.NewSnapshotManager(db).LoadEventsFrom(ctx, from, limit)
	if err != nil {
		return nil, err
	}
	envs := make([]event.Envelope, 0, len(rows))
	for _, r := range rows {
		env, err := r.Envelope()
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// applyEvent folds one event into the read models. Events that do not touch
// a projection are ignored.
func applyEvent(ctx context.Context, tx *sql.Tx, env event.Envelope) error {
	seq := env.Sequence

	switch e := env.Payload.(type) {
	case *event.WithdrawalRequested:
		if err := addRequestShares(ctx, tx, e.Owner.String(), e.EpochID, e.Shares.String(), seq); err != nil {
			return err
		}
		return addEpochShares(ctx, tx, e.EpochID, e.Shares.String(), seq)

	case *event.RequestCancelled:
		if err := addRequestShares(ctx, tx, e.User.String(), e.EpochID, "-"+e.Shares.String(), seq); err != nil {
			return err
		}
		return addEpochShares(ctx, tx, e.EpochID, "-"+e.Shares.String(), seq)

	case *event.RequestMoved:
		user := e.User.String()
		if err := addRequestShares(ctx, tx, user, e.FromEpoch, "-"+e.Shares.String(), seq); err != nil {
			return err
		}
		if err := addEpochShares(ctx, tx, e.FromEpoch, "-"+e.Shares.String(), seq); err != nil {
			return err
		}
		if err := addRequestShares(ctx, tx, user, e.ToEpoch, e.Shares.String(), seq); err != nil {
			return err
		}
		return addEpochShares(ctx, tx, e.ToEpoch, e.Shares.String(), seq)

	case *event.EpochClosed:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.epochs (epoch_id, status, closed_at, last_sequence)
			VALUES ($1, 'processing', $2, $3)
			ON CONFLICT (epoch_id) DO UPDATE SET status = 'processing', closed_at = $2, last_sequence = $3
		`, e.EpochID, env.Timestamp, seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.epochs (epoch_id, status, last_sequence)
			VALUES ($1, 'active', $2)
			ON CONFLICT (epoch_id) DO UPDATE SET status = 'active', last_sequence = $2
		`, e.EpochID+1, seq)
		return err

	case *event.EpochProcessed:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.epochs (epoch_id, status, total_shares, total_assets, price_per_share, processed_at, last_sequence)
			VALUES ($1, 'processed', $2, $3, $4, $5, $6)
			ON CONFLICT (epoch_id) DO UPDATE SET
				status = 'processed', total_assets = $3, price_per_share = $4,
				processed_at = $5, last_sequence = $6
		`, e.EpochID, e.Shares.String(), e.Assets.String(), e.SharePrice.String(), env.Timestamp, seq)
		return err

	case *event.WithdrawalClaimed:
		for _, epochID := range e.EpochIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE projections.epoch_requests SET claimed = TRUE, last_sequence = $3
				WHERE user_id = $1 AND epoch_id = $2
			`, e.User.String(), epochID, seq); err != nil {
				return err
			}
		}
		return nil

	case *event.StrategyAdded:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.strategies (strategy_id, status, allocated, removed, last_sequence)
			VALUES ($1, 'active', 0, FALSE, $2)
			ON CONFLICT (strategy_id) DO UPDATE SET status = 'active', allocated = 0, removed = FALSE, last_sequence = $2
		`, e.Strategy.String(), seq)
		return err

	case *event.StrategyRemoved:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.strategies SET status = 'inactive', allocated = 0, removed = TRUE, last_sequence = $2
			WHERE strategy_id = $1
		`, e.Strategy.String(), seq)
		return err

	case *event.StrategyStatusToggled:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.strategies SET status = $2, last_sequence = $3 WHERE strategy_id = $1
		`, e.Strategy.String(), e.Status, seq)
		return err

	case *event.FundsAllocated:
		delta := e.Amount.String()
		if !e.IsDeposit {
			delta = "-" + delta
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.strategies
			SET allocated = GREATEST(allocated + $2::NUMERIC, 0), last_sequence = $3
			WHERE strategy_id = $1
		`, e.Strategy.String(), delta, seq)
		return err

	case *event.StrategyYieldReported:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.strategies SET
				allocated   = $2::NUMERIC,
				total_yield = total_yield + GREATEST($2::NUMERIC - $3::NUMERIC, 0),
				total_loss  = total_loss + GREATEST($3::NUMERIC - $2::NUMERIC, 0),
				last_sequence = $4
			WHERE strategy_id = $1
		`, e.Strategy.String(), e.Current.String(), e.Previous.String(), seq)
		return err
	}

	return nil
}

// addRequestShares adjusts one user's request for an epoch; rows that reach
// zero shares are removed.
func addRequestShares(ctx context.Context, tx *sql.Tx, user string, epochID uint64, delta string, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.epoch_requests (user_id, epoch_id, shares, last_sequence)
		VALUES ($1, $2, $3::NUMERIC, $4)
		ON CONFLICT (user_id, epoch_id) DO UPDATE SET
			shares = projections.epoch_requests.shares + $3::NUMERIC, last_sequence = $4
	`, user, epochID, delta, seq); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM projections.epoch_requests
		WHERE user_id = $1 AND epoch_id = $2 AND shares <= 0 AND claimed = FALSE
	`, user, epochID)
	return err
}

func addEpochShares(ctx context.Context, tx *sql.Tx, epochID uint64, delta string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.epochs (epoch_id, status, total_shares, last_sequence)
		VALUES ($1, 'active', $2::NUMERIC, $3)
		ON CONFLICT (epoch_id) DO UPDATE SET
			total_shares = projections.epochs.total_shares + $2::NUMERIC, last_sequence = $3
	`, epochID, delta, seq)
	return err
}
