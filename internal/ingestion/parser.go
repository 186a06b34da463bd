package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"StrategyVault/internal/command"

	"github.com/google/uuid"
)

// commandJSON is the wire body producers publish. The command type travels in
// the subject; a body may repeat it, in which case the two must agree.
type commandJSON struct {
	Type           string          `json:"type,omitempty"`
	Key            string          `json:"key"`
	Source         string          `json:"source,omitempty"`
	SourceSequence int64           `json:"source_sequence,omitempty"`
	Caller         string          `json:"caller"`
	Payload        json.RawMessage `json:"payload"`
}

// CommandTypeFromSubject reads <command_type> out of
// vault.cmd.<command_type>[.<source>...].
func CommandTypeFromSubject(subject string) (command.Type, error) {
	rest, ok := strings.CutPrefix(subject, CommandSubjectPrefix+".")
	if !ok {
		return "", fmt.Errorf("subject %q is not a command subject", subject)
	}
	name, _, _ := strings.Cut(rest, ".")
	t, ok := command.ParseType(name)
	if !ok {
		return "", fmt.Errorf("unknown command type %q in subject %q", name, subject)
	}
	return t, nil
}

// ParseCommand converts a RawCommand into a validated command. typeName
// overrides the subject when set.
func ParseCommand(raw RawCommand, typeName string) (*command.Command, error) {
	var (
		t   command.Type
		err error
	)
	if typeName != "" {
		var ok bool
		if t, ok = command.ParseType(typeName); !ok {
			return nil, fmt.Errorf("unknown command type: %s", typeName)
		}
	} else if t, err = CommandTypeFromSubject(raw.Subject); err != nil {
		return nil, err
	}

	var j commandJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", t, err)
	}
	if j.Type != "" && j.Type != string(t) {
		return nil, fmt.Errorf("body type %q does not match %q", j.Type, t)
	}
	if j.Key == "" {
		return nil, fmt.Errorf("%s: %w", t, command.ErrMissingKey)
	}
	if j.Source == "" && j.SourceSequence != 0 {
		return nil, fmt.Errorf("%s: source_sequence without source", t)
	}

	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("invalid caller: %w", err)
	}

	payload, err := command.DecodePayload(t, j.Payload)
	if err != nil {
		return nil, err
	}

	return &command.Command{
		Type:           t,
		Key:            j.Key,
		Source:         j.Source,
		SourceSequence: j.SourceSequence,
		Caller:         caller,
		Payload:        payload,
	}, nil
}
