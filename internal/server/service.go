package server

import (
	"context"

	"StrategyVault/internal/query"

	"google.golang.org/grpc"
)

const ServiceName = "strategyvault.v1.Vault"

// VaultServiceServer is the gRPC surface of the vault. Live views are read
// on the runner goroutine; List* and VerifyIntegrity read the projections and
// event log.
type VaultServiceServer interface {
	SubmitCommand(context.Context, *SubmitCommandRequest) (*SubmitCommandResponse, error)

	GetVault(context.Context, *GetVaultRequest) (*VaultResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*AccountResponse, error)
	Preview(context.Context, *PreviewRequest) (*PreviewResponse, error)
	GetEpoch(context.Context, *GetEpochRequest) (*EpochResponse, error)
	GetStrategies(context.Context, *GetStrategiesRequest) (*StrategiesResponse, error)

	ListEpochs(context.Context, *ListEpochsRequest) (*ListEpochsResponse, error)
	ListRequests(context.Context, *ListRequestsRequest) (*ListRequestsResponse, error)
	ListStrategyHistory(context.Context, *ListStrategyHistoryRequest) (*ListStrategyHistoryResponse, error)
	ListEvents(context.Context, *ListEventsRequest) (*ListEventsResponse, error)

	VerifyIntegrity(context.Context, *VerifyIntegrityRequest) (*query.IntegrityReport, error)
	GetSystemStatus(context.Context, *SystemStatusRequest) (*SystemStatusResponse, error)
}

// unary builds the MethodDesc protoc-gen-go-grpc would generate for one RPC.
func unary[Req, Resp any](name string, call func(VaultServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(VaultServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(VaultServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var VaultServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitCommand", VaultServiceServer.SubmitCommand),
		unary("GetVault", VaultServiceServer.GetVault),
		unary("GetAccount", VaultServiceServer.GetAccount),
		unary("Preview", VaultServiceServer.Preview),
		unary("GetEpoch", VaultServiceServer.GetEpoch),
		unary("GetStrategies", VaultServiceServer.GetStrategies),
		unary("ListEpochs", VaultServiceServer.ListEpochs),
		unary("ListRequests", VaultServiceServer.ListRequests),
		unary("ListStrategyHistory", VaultServiceServer.ListStrategyHistory),
		unary("ListEvents", VaultServiceServer.ListEvents),
		unary("VerifyIntegrity", VaultServiceServer.VerifyIntegrity),
		unary("GetSystemStatus", VaultServiceServer.GetSystemStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strategyvault/v1/vault.proto",
}

func RegisterVaultServiceServer(s grpc.ServiceRegistrar, srv VaultServiceServer) {
	s.RegisterService(&VaultServiceDesc, srv)
}

// VaultServiceClient calls the service over a connection using the JSON
// codec.
type VaultServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewVaultServiceClient(cc grpc.ClientConnInterface) *VaultServiceClient {
	return &VaultServiceClient{cc: cc}
}

// Invoke calls method with in and decodes the reply into out.
func (c *VaultServiceClient) Invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
