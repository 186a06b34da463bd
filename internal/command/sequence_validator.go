package command

import (
	"errors"
	"fmt"
	"maps"
)

var (
	// ErrSequenceGap means earlier commands from the source have not arrived
	// yet; the command may succeed once they do.
	ErrSequenceGap = errors.New("sequence gap")
	// ErrOutOfOrder means the source already moved past this sequence.
	ErrOutOfOrder = errors.New("out-of-order command")
)

// SequenceValidator enforces gap-free, in-order delivery per command source.
// Not thread-safe; only the Runner goroutine touches it.
type SequenceValidator struct {
	expectedNextSeq map[string]int64
	gaps            map[string]int64
	outOfOrder      map[string]int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		gaps:            make(map[string]int64),
		outOfOrder:      make(map[string]int64),
	}
}

// ValidateSequence checks a source sequence. A stale sequence is accepted
// only when the command is a known duplicate.
func (sv *SequenceValidator) ValidateSequence(source string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[source]

	switch {
	case sourceSequence < expected:
		if isDuplicate {
			return nil
		}
		sv.outOfOrder[source]++
		return fmt.Errorf("%w: source=%s, expected=%d, got=%d",
			ErrOutOfOrder, source, expected, sourceSequence)

	case sourceSequence == expected:
		return nil

	default:
		sv.gaps[source]++
		return fmt.Errorf("%w: source=%s, expected=%d, got=%d",
			ErrSequenceGap, source, expected, sourceSequence)
	}
}

// Advance moves the source past sourceSequence. The Runner calls it once the
// command reached the vault, whatever the outcome.
func (sv *SequenceValidator) Advance(source string, sourceSequence int64) {
	if sourceSequence >= sv.expectedNextSeq[source] {
		sv.expectedNextSeq[source] = sourceSequence + 1
	}
}

// GetExpectedSequence returns the next expected sequence for source.
func (sv *SequenceValidator) GetExpectedSequence(source string) int64 {
	return sv.expectedNextSeq[source]
}

// SetExpectedSequence initialises a source during recovery.
func (sv *SequenceValidator) SetExpectedSequence(source string, seq int64) {
	sv.expectedNextSeq[source] = seq
}

// State copies the per-source expectations for snapshots.
func (sv *SequenceValidator) State() map[string]int64 {
	return maps.Clone(sv.expectedNextSeq)
}

func (sv *SequenceValidator) Gaps(source string) int64       { return sv.gaps[source] }
func (sv *SequenceValidator) OutOfOrder(source string) int64 { return sv.outOfOrder[source] }
