package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/event"

	"github.com/google/uuid"
)

// execer is satisfied by *sql.DB and *sql.Tx so batches can be written
// inside the worker's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes the command input log and the event log to Postgres
// using multi-row INSERTs. Both writes are idempotent on their primary key,
// so replaying a batch after a partial failure is safe.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence   int64
	EventType  string
	CommandKey string
	Payload    []byte // JSON-encoded event payload
	StateHash  []byte
	PrevHash   []byte
	Timestamp  time.Time
}

// CommandRow represents a row in event_log.commands
type CommandRow struct {
	Index          int64
	CommandType    string
	CommandKey     string // composite "type:key"
	Source         string
	SourceSequence int64
	Caller         string
	Payload        []byte
	Timestamp      time.Time
	Error          *string // nil when the vault accepted the command
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteCommandBatch writes a batch of applied commands to event_log.commands.
func (w *EventLogWriter) WriteCommandBatch(ctx context.Context, ex execer, cmds []CommandRow) error {
	if len(cmds) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.commands
		(command_index, command_type, command_key, source, source_sequence, caller, payload, timestamp, error)
		VALUES `

	const cols = 9
	values := make([]string, 0, len(cmds))
	args := make([]any, 0, len(cmds)*cols)

	for i, c := range cmds {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			c.Index, c.CommandType, c.CommandKey, c.Source, c.SourceSequence,
			c.Caller, c.Payload, c.Timestamp, c.Error,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (command_index) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, command_key, payload, state_hash, prev_hash, timestamp)
		VALUES `

	const cols = 7
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)

	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			e.Sequence, e.EventType, e.CommandKey,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+i)
	}
	b.WriteByte(')')
	return b.String()
}

// NewCoreOutput converts a runner output into the rows the worker writes.
func NewCoreOutput(out command.Output) (CoreOutput, error) {
	cmdRow, err := NewCommandRow(out.Applied)
	if err != nil {
		return CoreOutput{}, err
	}

	rows := make([]EventRow, 0, len(out.Events))
	for _, env := range out.Events {
		row, err := NewEventRow(env)
		if err != nil {
			return CoreOutput{}, err
		}
		rows = append(rows, row)
	}
	return CoreOutput{Command: cmdRow, Events: rows}, nil
}

func NewCommandRow(a command.Applied) (CommandRow, error) {
	payload, err := json.Marshal(a.Command.Payload)
	if err != nil {
		return CommandRow{}, fmt.Errorf("marshal %s payload: %w", a.Command.Type, err)
	}
	row := CommandRow{
		Index:          a.Index,
		CommandType:    string(a.Command.Type),
		CommandKey:     a.Command.CompositeKey(),
		Source:         a.Command.Source,
		SourceSequence: a.Command.SourceSequence,
		Caller:         a.Command.Caller.String(),
		Payload:        payload,
		Timestamp:      a.Timestamp,
	}
	if a.Error != "" {
		msg := a.Error
		row.Error = &msg
	}
	return row, nil
}

func NewEventRow(env event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal %s payload: %w", env.EventType, err)
	}
	return EventRow{
		Sequence:   env.Sequence,
		EventType:  env.EventType.String(),
		CommandKey: env.CommandKey,
		Payload:    payload,
		StateHash:  env.StateHash[:],
		PrevHash:   env.PrevHash[:],
		Timestamp:  env.Timestamp,
	}, nil
}

// Applied rebuilds the input-log entry from a stored row.
func (c CommandRow) Applied() (command.Applied, error) {
	t, ok := command.ParseType(c.CommandType)
	if !ok {
		return command.Applied{}, fmt.Errorf("command %d: unknown type %q", c.Index, c.CommandType)
	}
	payload, err := command.DecodePayload(t, c.Payload)
	if err != nil {
		return command.Applied{}, fmt.Errorf("command %d: %w", c.Index, err)
	}
	caller, err := parseCaller(c.Caller)
	if err != nil {
		return command.Applied{}, fmt.Errorf("command %d: %w", c.Index, err)
	}

	a := command.Applied{
		Index: c.Index,
		Command: command.Command{
			Type:           t,
			Key:            strings.TrimPrefix(c.CommandKey, c.CommandType+":"),
			Source:         c.Source,
			SourceSequence: c.SourceSequence,
			Caller:         caller,
			Payload:        payload,
		},
		Timestamp: c.Timestamp.UTC(),
	}
	if c.Error != nil {
		a.Error = *c.Error
	}
	return a, nil
}

// Envelope decodes a stored event row.
func (e EventRow) Envelope() (event.Envelope, error) {
	et, ok := event.ParseEventType(e.EventType)
	if !ok {
		return event.Envelope{}, fmt.Errorf("event %d: unknown type %q", e.Sequence, e.EventType)
	}
	payload, err := event.Decode(et, e.Payload)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("event %d: %w", e.Sequence, err)
	}
	env := event.Envelope{
		Sequence:   e.Sequence,
		CommandKey: e.CommandKey,
		EventType:  et,
		Timestamp:  e.Timestamp.UTC(),
		Payload:    payload,
	}
	copy(env.StateHash[:], e.StateHash)
	copy(env.PrevHash[:], e.PrevHash)
	return env, nil
}

func parseCaller(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
