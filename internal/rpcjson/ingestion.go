package rpcjson

import (
	"context"

	"google.golang.org/grpc"
)

// IngestPointRequest carries one raw ingest payload over the wire.
type IngestPointRequest struct {
	Format string `json:"format"` // "json" or "csv"
	Data   []byte `json:"data"`
}

// IngestPointResponse reports how many points were accepted.
type IngestPointResponse struct {
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// IngestionServer is implemented by cmd/ingestion-server to serve the
// write path over gRPC.
type IngestionServer interface {
	IngestBatch(ctx context.Context, req *IngestPointRequest) (*IngestPointResponse, error)
}

func ingestBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(IngestPointRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestionServer).IngestBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/storageengine.IngestionService/IngestBatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestionServer).IngestBatch(ctx, req.(*IngestPointRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// IngestionServiceDesc is the hand-written grpc.ServiceDesc standing in
// for a protoc-generated one.
var IngestionServiceDesc = grpc.ServiceDesc{
	ServiceName: "storageengine.IngestionService",
	HandlerType: (*IngestionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IngestBatch", Handler: ingestBatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ingestion.rpcjson",
}

// RegisterIngestionServer registers srv on s using IngestionServiceDesc.
func RegisterIngestionServer(s *grpc.Server, srv IngestionServer) {
	s.RegisterService(&IngestionServiceDesc, srv)
}
