package server

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"StrategyVault/internal/access"
	"StrategyVault/internal/command"
	"StrategyVault/internal/core"
	"StrategyVault/internal/ingestion"
	vmath "StrategyVault/internal/math"
	"StrategyVault/internal/query"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Engine is the runner as seen by the server.
type Engine interface {
	ingestion.Submitter
	View(ctx context.Context, fn func(v *core.Vault) error) error
	CommandIndex() int64
}

type vaultService struct {
	engine    Engine
	ingest    *ingestion.GRPCIngestService
	qs        *query.QueryService
	startTime time.Time
	logger    zerolog.Logger
}

func (s *vaultService) SubmitCommand(ctx context.Context, req *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	if req.Type == "" {
		return nil, status.Error(codes.InvalidArgument, "type is required")
	}

	res, err := s.ingest.SubmitJSON(ctx, req.Type, req.Command)
	if err != nil {
		if isUnavailable(err) {
			return nil, toStatus(err)
		}
		return nil, status.Errorf(codes.InvalidArgument, "parse command: %v", err)
	}
	if res.Err != nil {
		return nil, toStatus(res.Err)
	}

	return &SubmitCommandResponse{
		Index:     res.Index,
		Sequence:  res.Sequence,
		Duplicate: res.Duplicate,
		Value:     res.Value,
	}, nil
}

func (s *vaultService) GetVault(ctx context.Context, _ *GetVaultRequest) (*VaultResponse, error) {
	var resp *VaultResponse
	err := s.engine.View(ctx, func(v *core.Vault) error {
		total, err := v.TotalAssets(ctx)
		if err != nil {
			return err
		}
		hash := v.StateHash()
		resp = &VaultResponse{
			VaultID:           v.ID(),
			Denom:             v.Asset().Denom(),
			Decimals:          v.Decimals(),
			DecimalsOffset:    v.DecimalsOffset(),
			TotalAssets:       total.String(),
			CachedTotalAssets: v.CachedTotalAssets().String(),
			TotalSupply:       v.TotalSupply().String(),
			IdleAssets:        v.IdleAssets().String(),
			LockedAssets:      v.LockedAssets().String(),
			Async:             v.IsAsync(),
			Fees:              v.GetFeeConfig(),
			Limits:            v.GetLimits(),
			DeallocationOrder: v.GetDeallocationOrder(),
			Sequence:          v.Sequence(),
			StateHash:         hex.EncodeToString(hash[:]),
		}
		if v.IsAsync() {
			resp.QueueActive = v.QueueActive()
			resp.LatestEpochID = v.LatestEpochID()
		}
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *vaultService) GetAccount(ctx context.Context, req *GetAccountRequest) (*AccountResponse, error) {
	if req.Account == uuid.Nil {
		return nil, status.Error(codes.InvalidArgument, "account is required")
	}

	resp := &AccountResponse{Account: req.Account}
	err := s.engine.View(ctx, func(v *core.Vault) error {
		shares := v.BalanceOf(req.Account)
		assets, err := v.ConvertToAssets(ctx, shares)
		if err != nil {
			return err
		}
		maxMint, err := v.MaxMint(ctx, req.Account)
		if err != nil {
			return err
		}
		maxWithdraw, err := v.MaxWithdraw(ctx, req.Account)
		if err != nil {
			return err
		}
		maxRedeem, err := v.MaxRedeem(ctx, req.Account)
		if err != nil {
			return err
		}

		resp.Shares = shares.String()
		resp.Assets = assets.String()
		resp.AssetBalance = v.Asset().BalanceOf(req.Account).String()
		resp.MaxDeposit = v.MaxDeposit(req.Account).String()
		resp.MaxMint = maxMint.String()
		resp.MaxWithdraw = maxWithdraw.String()
		resp.MaxRedeem = maxRedeem.String()

		if v.IsAsync() {
			for _, epochID := range v.UserEpochRequests(req.Account) {
				resp.Requests = append(resp.Requests, PendingRequest{
					EpochID: epochID,
					Shares:  v.UserEpochRequest(req.Account, epochID).String(),
					State:   v.GetEpochState(epochID).String(),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *vaultService) Preview(ctx context.Context, req *PreviewRequest) (*PreviewResponse, error) {
	if req.Amount.IsNil() || req.Amount.IsNegative() {
		return nil, status.Error(codes.InvalidArgument, "amount must be a non-negative integer")
	}

	var preview func(v *core.Vault) (sdkmath.Int, error)
	switch req.Kind {
	case PreviewDeposit:
		preview = func(v *core.Vault) (sdkmath.Int, error) { return v.PreviewDeposit(ctx, req.Amount) }
	case PreviewMint:
		preview = func(v *core.Vault) (sdkmath.Int, error) { return v.PreviewMint(ctx, req.Amount) }
	case PreviewWithdraw:
		preview = func(v *core.Vault) (sdkmath.Int, error) { return v.PreviewWithdraw(ctx, req.Amount) }
	case PreviewRedeem:
		preview = func(v *core.Vault) (sdkmath.Int, error) { return v.PreviewRedeem(ctx, req.Amount) }
	case ConvertToShares:
		preview = func(v *core.Vault) (sdkmath.Int, error) { return v.ConvertToShares(ctx, req.Amount) }
	case ConvertToAssets:
		preview = func(v *core.Vault) (sdkmath.Int, error) { return v.ConvertToAssets(ctx, req.Amount) }
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown preview kind %q", req.Kind)
	}

	var result sdkmath.Int
	err := s.engine.View(ctx, func(v *core.Vault) error {
		var err error
		result, err = preview(v)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &PreviewResponse{Kind: req.Kind, Amount: req.Amount.String(), Result: result.String()}, nil
}

func (s *vaultService) GetEpoch(ctx context.Context, req *GetEpochRequest) (*EpochResponse, error) {
	var resp *EpochResponse
	err := s.engine.View(ctx, func(v *core.Vault) error {
		if !v.IsAsync() {
			return core.ErrQueueNotSupported
		}
		resp = &EpochResponse{
			EpochID:              req.EpochID,
			State:                v.GetEpochState(req.EpochID).String(),
			TotalRequestedShares: v.TotalRequestedShares(req.EpochID).String(),
		}
		if price := v.GetEpochPrice(req.EpochID); price.Valid {
			p := price.Value.String()
			resp.PricePerShare = &p
		}
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *vaultService) GetStrategies(ctx context.Context, _ *GetStrategiesRequest) (*StrategiesResponse, error) {
	resp := &StrategiesResponse{}
	err := s.engine.View(ctx, func(v *core.Vault) error {
		for _, id := range v.GetStrategies() {
			data := v.GetStrategyData(id)
			resp.Strategies = append(resp.Strategies, LiveStrategy{
				StrategyID: id,
				Status:     data.Status.String(),
				Allocated:  data.Allocated.String(),
			})
		}
		resp.Sequence = v.Sequence()
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

// --- projection reads ---

func (s *vaultService) ListEpochs(ctx context.Context, req *ListEpochsRequest) (*ListEpochsResponse, error) {
	if s.qs == nil {
		return nil, errNoQueries
	}
	epochs, err := s.qs.GetEpochHistory(ctx, req.Limit, req.Before)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get epoch history: %v", err)
	}
	return &ListEpochsResponse{Epochs: epochs}, nil
}

func (s *vaultService) ListRequests(ctx context.Context, req *ListRequestsRequest) (*ListRequestsResponse, error) {
	if s.qs == nil {
		return nil, errNoQueries
	}
	if req.User == uuid.Nil {
		return nil, status.Error(codes.InvalidArgument, "user is required")
	}
	requests, err := s.qs.GetUserRequests(ctx, req.User, req.IncludeClaimed)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get user requests: %v", err)
	}
	return &ListRequestsResponse{Requests: requests}, nil
}

func (s *vaultService) ListStrategyHistory(ctx context.Context, req *ListStrategyHistoryRequest) (*ListStrategyHistoryResponse, error) {
	if s.qs == nil {
		return nil, errNoQueries
	}
	strategies, err := s.qs.GetStrategies(ctx, req.IncludeRemoved)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get strategies: %v", err)
	}
	return &ListStrategyHistoryResponse{Strategies: strategies}, nil
}

func (s *vaultService) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	if s.qs == nil {
		return nil, errNoQueries
	}
	events, err := s.qs.GetEventHistory(ctx, req.Limit, req.Before)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get events: %v", err)
	}
	return &ListEventsResponse{Events: events}, nil
}

// --- admin ---

func (s *vaultService) VerifyIntegrity(ctx context.Context, _ *VerifyIntegrityRequest) (*query.IntegrityReport, error) {
	if s.qs == nil {
		return nil, errNoQueries
	}
	report, err := s.qs.VerifyIntegrity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "verify integrity: %v", err)
	}
	if !report.IsHealthy {
		s.logger.Error().
			Ints64("chain_breaks", report.HashChainBreaks).
			Ints64("mismatches", report.HashMismatches).
			Ints64("gaps", report.SequenceGaps).
			Msg("integrity check failed")
	}
	return report, nil
}

func (s *vaultService) GetSystemStatus(ctx context.Context, _ *SystemStatusRequest) (*SystemStatusResponse, error) {
	resp := &SystemStatusResponse{State: "ready", Uptime: time.Since(s.startTime)}
	err := s.engine.View(ctx, func(v *core.Vault) error {
		hash := v.StateHash()
		resp.CommandIndex = s.engine.CommandIndex()
		resp.Sequence = v.Sequence()
		resp.StateHash = hex.EncodeToString(hash[:])
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

var errNoQueries = status.Error(codes.Unavailable, "query service not configured")

func isUnavailable(err error) bool {
	return errors.Is(err, command.ErrRunnerStopped) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// toStatus maps vault and runner errors onto gRPC codes. Registered vault
// errors carry their own GRPCStatus (codes.Unknown), so the mapping is
// explicit.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, command.ErrRunnerStopped):
		code = codes.Unavailable
	case errors.Is(err, access.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, command.ErrMissingKey),
		errors.Is(err, command.ErrInvalidPayload),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidReceiver),
		errors.Is(err, core.ErrEmptyEpochIDs):
		code = codes.InvalidArgument
	case errors.Is(err, core.ErrAssetAmountOutOfBounds),
		errors.Is(err, vmath.ErrAmountOverflow),
		errors.Is(err, core.ErrExceededMaxWithdraw),
		errors.Is(err, core.ErrExceededMaxRedeem):
		code = codes.OutOfRange
	case errors.Is(err, command.ErrSequence):
		code = codes.Aborted
	case errors.Is(err, command.ErrNotSupported),
		errors.Is(err, core.ErrQueueNotSupported):
		code = codes.Unimplemented
	case errors.Is(err, command.ErrUnknownStrategy):
		code = codes.NotFound
	case errorsmod.IsOf(err, core.ErrAdapterFailure, core.ErrAssetTransfer, core.ErrCallPanicked):
		code = codes.Internal
	default:
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}
