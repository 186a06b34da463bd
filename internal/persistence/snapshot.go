package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StrategyVault/internal/command"

	"github.com/google/uuid"
)

// SnapshotManager saves and loads runner checkpoints and reads the input log
// back for warm restart. A checkpoint holds the full vault state, the asset
// book, the source sequence counters and the recent idempotency keys.
type SnapshotManager struct {
	db *sql.DB
}

// formatVersion 1: JSON-encoded command.State.
const formatVersion = 1

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a checkpoint. It is stored unverified; see
// VerifyPersisted.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, state *command.State) (int, error) {
	if state == nil || state.Vault == nil {
		return 0, errors.New("checkpoint has no vault snapshot")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, command_index, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (command_index) DO UPDATE SET data = $4, state_hash = $5, size_bytes = $7
	`, uuid.New(), state.CommandIndex, state.Vault.Sequence, data, state.Vault.StateHash,
		formatVersion, len(data), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return len(data), nil
}

// VerifyPersisted marks every checkpoint whose commands are all durable in
// the input log as verified. A checkpoint taken while outputs were still in
// the persist channel stays unverified until the worker catches up, so a
// crash never restores past a hole in the log.
func (sm *SnapshotManager) VerifyPersisted(ctx context.Context) (int64, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE
		WHERE verified = FALSE
		  AND command_index <= (SELECT COALESCE(MAX(command_index), 0) FROM event_log.commands)
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkVerified marks one checkpoint as verified.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, commandIndex int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE command_index = $1
	`, commandIndex)
	return err
}

// LoadLatestSnapshot loads the most recent verified checkpoint. It returns
// nil, nil on a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*command.State, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY command_index DESC
		LIMIT 1
	`)

	var (
		data    []byte
		version int
	)
	if err := row.Scan(&data, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("load snapshot: unsupported format version %d", version)
	}

	var state command.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// LoadCommandsFrom loads up to limit input-log entries with index >= from.
func (sm *SnapshotManager) LoadCommandsFrom(ctx context.Context, from int64, limit int) ([]command.Applied, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT command_index, command_type, command_key, source, source_sequence,
		       caller, payload, timestamp, error
		FROM event_log.commands
		WHERE command_index >= $1
		ORDER BY command_index ASC
		LIMIT $2
	`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []command.Applied
	for rows.Next() {
		var (
			c      CommandRow
			errMsg sql.NullString
		)
		if err := rows.Scan(
			&c.Index, &c.CommandType, &c.CommandKey, &c.Source, &c.SourceSequence,
			&c.Caller, &c.Payload, &c.Timestamp, &errMsg,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			c.Error = &errMsg.String
		}
		applied, err := c.Applied()
		if err != nil {
			return nil, err
		}
		out = append(out, applied)
	}

	return out, rows.Err()
}

// LoadEventsFrom loads up to limit events with sequence >= from.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, from int64, limit int) ([]EventRow, error) {
	return loadEventsFrom(ctx, sm.db, from, limit)
}

func loadEventsFrom(ctx context.Context, db *sql.DB, from int64, limit int) ([]EventRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sequence, event_type, command_key, payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.CommandKey, &e.Payload,
			&e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	return sm.maxOf(ctx, `SELECT MAX(sequence) FROM event_log.events`)
}

// GetLatestCommandIndex returns the highest index in the input log.
func (sm *SnapshotManager) GetLatestCommandIndex(ctx context.Context) (int64, error) {
	return sm.maxOf(ctx, `SELECT MAX(command_index) FROM event_log.commands`)
}

func (sm *SnapshotManager) maxOf(ctx context.Context, query string) (int64, error) {
	var v sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return v.Int64, nil
}
