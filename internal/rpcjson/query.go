package rpcjson

import (
	"context"

	"google.golang.org/grpc"
)

// QueryRequest carries a query string in the `series{start,end}` grammar.
type QueryRequest struct {
	Query string `json:"query"`
}

// Point is one timestamp/value pair in a QueryResponse.
type Point struct {
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// QueryResponse carries the executor's merged, timestamp-ascending result.
type QueryResponse struct {
	Points []Point `json:"points"`
	Error  string  `json:"error,omitempty"`
}

// QueryServer is implemented by cmd/query-server to serve the read
// path over gRPC.
type QueryServer interface {
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/storageengine.QueryService/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryServer).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// QueryServiceDesc is the hand-written grpc.ServiceDesc standing in for
// a protoc-generated one.
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: "storageengine.QueryService",
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: queryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "query.rpcjson",
}

// RegisterQueryServer registers srv on s using QueryServiceDesc.
func RegisterQueryServer(s *grpc.Server, srv QueryServer) {
	s.RegisterService(&QueryServiceDesc, srv)
}
