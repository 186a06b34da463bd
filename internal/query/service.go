package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"StrategyVault/internal/core"
	"StrategyVault/internal/persistence"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the projection tables and the
// event log. Every response carries as_of_sequence, the projection
// watermark it was read at. Live vault views (balances, conversions, limits)
// are served from the runner, not from here.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetEpochHistory returns epochs newest first. before, when non-nil,
// paginates to epochs strictly older than it.
func (qs *QueryService) GetEpochHistory(ctx context.Context, limit int, before *uint64) ([]EpochResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT epoch_id, status, total_shares::TEXT, total_assets::TEXT,
		       price_per_share::TEXT, closed_at, processed_at
		FROM projections.epochs
	`
	args := []any{}
	argIdx := 1

	if before != nil {
		query += fmt.Sprintf(" WHERE epoch_id < $%d", argIdx)
		args = append(args, *before)
		argIdx++
	}

	query += " ORDER BY epoch_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var epochs []EpochResponse
	for rows.Next() {
		var (
			e      EpochResponse
			price  sql.NullString
			closed sql.NullTime
			done   sql.NullTime
		)
		if err := rows.Scan(&e.EpochID, &e.Status, &e.TotalShares, &e.TotalAssets, &price, &closed, &done); err != nil {
			return nil, err
		}
		if price.Valid {
			e.PricePerShare = &price.String
		}
		if closed.Valid {
			e.ClosedAt = &closed.Time
		}
		if done.Valid {
			e.ProcessedAt = &done.Time
		}
		e.AsOfSequence = asOfSeq
		epochs = append(epochs, e)
	}

	return epochs, rows.Err()
}

// GetUserRequests returns a user's withdrawal requests, oldest epoch first.
// Claimed requests are included only when includeClaimed is set.
func (qs *QueryService) GetUserRequests(ctx context.Context, userID uuid.UUID, includeClaimed bool) ([]RequestResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT r.epoch_id, r.shares::TEXT, COALESCE(e.status, 'active'), r.claimed
		FROM projections.epoch_requests r
		LEFT JOIN projections.epochs e ON e.epoch_id = r.epoch_id
		WHERE r.user_id = $1
	`
	if !includeClaimed {
		query += " AND r.claimed = FALSE"
	}
	query += " ORDER BY r.epoch_id ASC"

	rows, err := qs.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []RequestResponse
	for rows.Next() {
		r := RequestResponse{UserID: userID, AsOfSequence: asOfSeq}
		if err := rows.Scan(&r.EpochID, &r.Shares, &r.EpochStatus, &r.Claimed); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	return requests, rows.Err()
}

// GetStrategies returns every strategy the vault has seen. Removed
// strategies are included only when includeRemoved is set.
func (qs *QueryService) GetStrategies(ctx context.Context, includeRemoved bool) ([]StrategyResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT strategy_id, status, allocated::TEXT, total_yield::TEXT, total_loss::TEXT, removed
		FROM projections.strategies
	`
	if !includeRemoved {
		query += " WHERE removed = FALSE"
	}
	query += " ORDER BY strategy_id"

	rows, err := qs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StrategyResponse
	for rows.Next() {
		var (
			s  StrategyResponse
			id string
		)
		if err := rows.Scan(&id, &s.Status, &s.Allocated, &s.TotalYield, &s.TotalLoss, &s.Removed); err != nil {
			return nil, err
		}
		if s.StrategyID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("strategy id %q: %w", id, err)
		}
		s.AsOfSequence = asOfSeq
		out = append(out, s)
	}

	return out, rows.Err()
}

// GetEventHistory returns events newest first. before, when non-nil,
// paginates to sequences strictly below it.
func (qs *QueryService) GetEventHistory(ctx context.Context, limit int, before *int64) ([]EventResponse, error) {
	query := `
		SELECT sequence, event_type, command_key, payload, state_hash, timestamp
		FROM event_log.events
	`
	args := []any{}
	argIdx := 1

	if before != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *before)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var (
			e    EventResponse
			hash []byte
		)
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.CommandKey, &e.Payload, &hash, &e.Timestamp); err != nil {
			return nil, err
		}
		e.StateHash = hex.EncodeToString(hash)
		events = append(events, e)
	}

	return events, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity walks the event log: every event must follow its
// predecessor without a sequence gap, link to its state hash, and hash to
// its own stored state hash. It also flags negative projection totals.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	const page = 1000
	report := &IntegrityReport{}
	snaps := persistence.NewSnapshotManager(qs.db)

	var (
		prevSeq  int64
		prevHash = core.GenesisHash()
	)
	for from := int64(1); ; {
		rows, err := snaps.LoadEventsFrom(ctx, from, page)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return nil, err
			}
			report.EventsChecked++

			if env.Sequence != prevSeq+1 {
				report.SequenceGaps = append(report.SequenceGaps, env.Sequence)
			} else if env.PrevHash != prevHash {
				report.HashChainBreaks = append(report.HashChainBreaks, env.Sequence)
			}

			if !core.VerifyEnvelope(env) {
				report.HashMismatches = append(report.HashMismatches, env.Sequence)
			}

			prevSeq = env.Sequence
			prevHash = env.StateHash
		}
		if len(rows) < page {
			break
		}
		from = prevSeq + 1
	}

	negatives, err := qs.negativeProjections(ctx)
	if err != nil {
		return nil, err
	}
	report.NegativeProjections = negatives

	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		len(report.HashMismatches) == 0 &&
		len(report.SequenceGaps) == 0 &&
		len(report.NegativeProjections) == 0
	return report, nil
}

func (qs *QueryService) negativeProjections(ctx context.Context) ([]string, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT 'epoch:' || epoch_id::TEXT FROM projections.epochs WHERE total_shares < 0
		UNION ALL
		SELECT 'request:' || user_id::TEXT || ':' || epoch_id::TEXT FROM projections.epoch_requests WHERE shares < 0
		UNION ALL
		SELECT 'strategy:' || strategy_id::TEXT FROM projections.strategies WHERE allocated < 0
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE projection = 'vault'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
