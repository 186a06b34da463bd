package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path"
	"strconv"
	"time"

	"StrategyVault/internal/ingestion"
	"StrategyVault/internal/observability"
	"StrategyVault/internal/query"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer serves the vault over gRPC and HTTP/JSON.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	service       *vaultService
	metrics       *observability.Metrics
	healthChecker *observability.HealthChecker
	healthServer  *health.Server
	logger        zerolog.Logger
}

// ServerDeps holds all dependencies needed by the services.
type ServerDeps struct {
	Engine        Engine
	QueryService  *query.QueryService // optional
	Metrics       *observability.Metrics
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

// NewGRPCServer creates a new gRPC server with all services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	svc := &vaultService{
		engine:    deps.Engine,
		ingest:    ingestion.NewGRPCIngestService(deps.Engine),
		qs:        deps.QueryService,
		startTime: deps.StartTime,
		logger:    deps.Logger,
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(metricsInterceptor(deps.Metrics)))
	RegisterVaultServiceServer(grpcServer, svc)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		service:       svc,
		metrics:       deps.Metrics,
		healthChecker: deps.HealthChecker,
		healthServer:  healthServer,
		logger:        deps.Logger,
	}
}

// SetServing flips the gRPC health status of the vault service.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus(ServiceName, st)
	s.healthServer.SetServingStatus("", st)
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves on lis until ctx is cancelled.
func (s *GRPCServer) ServeGRPC(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON server (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	handler, err := s.HTTPHandler()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// HTTPHandler routes HTTP/JSON requests onto the same service the gRPC
// server exposes, plus /healthz and /readyz.
func (s *GRPCServer) HTTPHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	svc := s.service

	routes := []struct {
		method, pattern, endpoint string
		call                      func(r *http.Request, params map[string]string) (any, error)
	}{
		{"POST", "/v1/commands/{type}", "SubmitCommand", func(r *http.Request, p map[string]string) (any, error) {
			var body json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode body: %v", err)
			}
			return svc.SubmitCommand(r.Context(), &SubmitCommandRequest{Type: p["type"], Command: body})
		}},
		{"GET", "/v1/vault", "GetVault", func(r *http.Request, _ map[string]string) (any, error) {
			return svc.GetVault(r.Context(), &GetVaultRequest{})
		}},
		{"GET", "/v1/accounts/{account}", "GetAccount", func(r *http.Request, p map[string]string) (any, error) {
			account, err := parseUUID("account", p["account"])
			if err != nil {
				return nil, err
			}
			return svc.GetAccount(r.Context(), &GetAccountRequest{Account: account})
		}},
		{"GET", "/v1/preview/{kind}", "Preview", func(r *http.Request, p map[string]string) (any, error) {
			amount, ok := sdkmath.NewIntFromString(r.URL.Query().Get("amount"))
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "amount must be an integer")
			}
			return svc.Preview(r.Context(), &PreviewRequest{Kind: p["kind"], Amount: amount})
		}},
		{"GET", "/v1/epochs/{epoch_id}", "GetEpoch", func(r *http.Request, p map[string]string) (any, error) {
			epochID, err := strconv.ParseUint(p["epoch_id"], 10, 64)
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid epoch_id: %v", err)
			}
			return svc.GetEpoch(r.Context(), &GetEpochRequest{EpochID: epochID})
		}},
		{"GET", "/v1/strategies", "GetStrategies", func(r *http.Request, _ map[string]string) (any, error) {
			return svc.GetStrategies(r.Context(), &GetStrategiesRequest{})
		}},
		{"GET", "/v1/history/epochs", "ListEpochs", func(r *http.Request, _ map[string]string) (any, error) {
			req := &ListEpochsRequest{Limit: queryInt(r, "limit")}
			if v := r.URL.Query().Get("before"); v != "" {
				before, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "invalid before: %v", err)
				}
				req.Before = &before
			}
			return svc.ListEpochs(r.Context(), req)
		}},
		{"GET", "/v1/users/{user}/requests", "ListRequests", func(r *http.Request, p map[string]string) (any, error) {
			user, err := parseUUID("user", p["user"])
			if err != nil {
				return nil, err
			}
			return svc.ListRequests(r.Context(), &ListRequestsRequest{User: user, IncludeClaimed: queryBool(r, "include_claimed")})
		}},
		{"GET", "/v1/history/strategies", "ListStrategyHistory", func(r *http.Request, _ map[string]string) (any, error) {
			return svc.ListStrategyHistory(r.Context(), &ListStrategyHistoryRequest{IncludeRemoved: queryBool(r, "include_removed")})
		}},
		{"GET", "/v1/events", "ListEvents", func(r *http.Request, _ map[string]string) (any, error) {
			req := &ListEventsRequest{Limit: queryInt(r, "limit")}
			if v := r.URL.Query().Get("before"); v != "" {
				before, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "invalid before: %v", err)
				}
				req.Before = &before
			}
			return svc.ListEvents(r.Context(), req)
		}},
		{"POST", "/v1/admin/verify-integrity", "VerifyIntegrity", func(r *http.Request, _ map[string]string) (any, error) {
			return svc.VerifyIntegrity(r.Context(), &VerifyIntegrityRequest{})
		}},
		{"GET", "/v1/admin/status", "GetSystemStatus", func(r *http.Request, _ map[string]string) (any, error) {
			return svc.GetSystemStatus(r.Context(), &SystemStatusRequest{})
		}},
	}

	for _, rt := range routes {
		rt := rt
		err := mux.HandlePath(rt.method, rt.pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			start := time.Now()
			resp, err := rt.call(r, params)
			observe(s.metrics, rt.endpoint, start, err)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
		if err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}

func metricsInterceptor(m *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(m, path.Base(info.FullMethod), start, err)
		return resp, err
	}
}

func observe(m *observability.Metrics, endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.QueryRequests.WithLabelValues(endpoint).Inc()
	m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		m.QueryErrors.WithLabelValues(endpoint, status.Code(err).String()).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), map[string]string{
		"code":    st.Code().String(),
		"message": st.Message(),
	})
}

func parseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
