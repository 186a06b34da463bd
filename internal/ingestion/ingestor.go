package ingestion

import (
	"context"
	"errors"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/observability"

	"github.com/rs/zerolog"
)

// Submitter is the single-writer entry point of the vault.
type Submitter interface {
	Submit(ctx context.Context, cmd *command.Command) (command.Result, error)
}

// Ingestor drains raw commands from the transport, parses them and submits
// them one at a time, preserving delivery order.
//
// Acknowledgement:
//   - applied, duplicate, or rejected by the vault: Ack
//   - sequence gap, runner unavailable: Nak (redelivered)
//   - unparseable: Term
type Ingestor struct {
	submitter Submitter
	input     <-chan RawCommand
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewIngestor(submitter Submitter, input <-chan RawCommand, metrics *observability.Metrics, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		submitter: submitter,
		input:     input,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run processes commands until ctx is cancelled or the input closes.
func (in *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-in.input:
			if !ok {
				return nil
			}
			in.handle(ctx, raw)
		}
	}
}

func (in *Ingestor) handle(ctx context.Context, raw RawCommand) {
	cmd, err := ParseCommand(raw, "")
	if err != nil {
		in.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable command")
		if in.metrics != nil {
			in.metrics.CommandsRejected.WithLabelValues("unparsed", "parse").Inc()
		}
		call(raw.TermFunc)
		return
	}

	res, err := in.submitter.Submit(ctx, cmd)
	if err != nil {
		in.logger.Warn().Err(err).Str("command", string(cmd.Type)).Str("key", cmd.Key).Msg("submit failed, redelivering")
		call(raw.NakFunc)
		return
	}

	if errors.Is(res.Err, command.ErrSequenceGap) {
		in.logger.Debug().Err(res.Err).Str("source", cmd.Source).Msg("sequence gap, redelivering")
		call(raw.NakFunc)
		return
	}

	if in.metrics != nil && !res.Duplicate {
		in.metrics.IngestToApply.WithLabelValues(string(cmd.Type)).Observe(time.Since(raw.Timestamp).Seconds())
	}
	if res.Err != nil {
		in.logger.Info().Err(res.Err).Str("command", string(cmd.Type)).Str("key", cmd.Key).Msg("command rejected")
	}
	call(raw.AckFunc)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
