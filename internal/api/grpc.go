package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"marketpulse/internal/dashboard"
	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/internal/httpapi"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "marketpulse.Breadth"

// BreadthServiceServer is the server API for the Breadth service. Payloads are
// google.protobuf.Struct values with the same shape as the HTTP API's JSON.
type BreadthServiceServer interface {
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetUniverse(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// BreadthService serves breadth snapshots over gRPC.
type BreadthService struct {
	refresher *gather.Refresher
}

var _ BreadthServiceServer = (*BreadthService)(nil)

// NewBreadthService creates a BreadthService backed by the given refresher.
func NewBreadthService(refresher *gather.Refresher) *BreadthService {
	return &BreadthService{refresher: refresher}
}

// GetSnapshot returns the latest snapshot. The request may set "sort" and
// "class" string fields to order and filter rows.
func (s *BreadthService) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var sortBy, class string
	if req != nil {
		sortBy = req.GetFields()["sort"].GetStringValue()
		class = strings.ToLower(req.GetFields()["class"].GetStringValue())
	}
	switch domain.Classification(class) {
	case "", domain.Advance, domain.Decline, domain.Neutral:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown class %q", class)
	}

	snap := s.refresher.LatestOrRun(ctx)
	snap.Report.Rows = dashboard.FilterClass(
		dashboard.SortRows(snap.Report.Rows, dashboard.ParseSortMode(sortBy)),
		domain.Classification(class),
	)
	out := httpapi.ToSnapshotJSON(snap)
	out.Total = out.Advances + out.Declines + out.Neutral
	return toStruct(out)
}

// Refresh runs a cycle synchronously and returns its snapshot.
func (s *BreadthService) Refresh(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(httpapi.ToSnapshotJSON(s.refresher.RunOnce(ctx)))
}

// GetUniverse returns the current universe.
func (s *BreadthService) GetUniverse(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(httpapi.ToUniverseJSON(s.refresher.Universe(ctx)))
}

// toStruct converts a JSON-tagged value to a Struct via its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return st, nil
}

// FromStruct decodes a Struct payload into a JSON-tagged value.
func FromStruct(st *structpb.Struct, v any) error {
	data, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("decoding struct: %w", err)
	}
	return json.Unmarshal(data, v)
}

// RegisterBreadthServiceServer registers srv on s.
func RegisterBreadthServiceServer(s grpc.ServiceRegistrar, srv BreadthServiceServer) {
	s.RegisterService(&breadthServiceDesc, srv)
}

var breadthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BreadthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "Refresh", Handler: refreshHandler},
		{MethodName: "GetUniverse", Handler: getUniverseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketpulse/breadth.proto",
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BreadthServiceServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BreadthServiceServer).GetSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func refreshHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BreadthServiceServer).Refresh(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Refresh"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BreadthServiceServer).Refresh(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getUniverseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BreadthServiceServer).GetUniverse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetUniverse"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BreadthServiceServer).GetUniverse(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// BreadthClient is a thin client for the Breadth service.
type BreadthClient struct {
	cc grpc.ClientConnInterface
}

// NewBreadthClient creates a client over an established connection.
func NewBreadthClient(cc grpc.ClientConnInterface) *BreadthClient {
	return &BreadthClient{cc: cc}
}

// GetSnapshot calls Breadth/GetSnapshot.
func (c *BreadthClient) GetSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetSnapshot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh calls Breadth/Refresh.
func (c *BreadthClient) Refresh(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Refresh", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUniverse calls Breadth/GetUniverse.
func (c *BreadthClient) GetUniverse(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetUniverse", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
