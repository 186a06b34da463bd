package ingestion

import (
	"context"
	"fmt"
	"time"

	"StrategyVault/internal/command"
)

// GRPCIngestService is the admin/manual submission path. High-throughput
// producers publish to NATS instead; both paths end in the same Submitter.
type GRPCIngestService struct {
	submitter Submitter
}

func NewGRPCIngestService(submitter Submitter) *GRPCIngestService {
	return &GRPCIngestService{submitter: submitter}
}

// SubmitJSON parses a JSON command body of the named type and submits it.
// Vault rejections come back in Result.Err; the error return is for
// malformed input and an unavailable runner.
func (s *GRPCIngestService) SubmitJSON(ctx context.Context, typeName string, body []byte) (command.Result, error) {
	if typeName == "" {
		return command.Result{}, fmt.Errorf("command type is required")
	}
	raw := RawCommand{
		Subject:   CommandSubjectPrefix + "." + typeName,
		Data:      body,
		Timestamp: time.Now(),
	}
	cmd, err := ParseCommand(raw, typeName)
	if err != nil {
		return command.Result{}, err
	}
	return s.submitter.Submit(ctx, cmd)
}

// Submit forwards an already typed command; the runner validates it.
func (s *GRPCIngestService) Submit(ctx context.Context, cmd *command.Command) (command.Result, error) {
	return s.submitter.Submit(ctx, cmd)
}
