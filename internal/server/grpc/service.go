package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "sphinxvox.v1.Recognizer"

// RecognizerServer is the server API for sphinxvox.v1.Recognizer.
// Messages are protobuf well-known types so no generated code is needed.
type RecognizerServer interface {
	// StartListening takes {search, timeout_ms}
	StartListening(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Stop(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	Cancel(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	SetSearch(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Events(*emptypb.Empty, Recognizer_EventsServer) error
}

// Recognizer_EventsServer is the server side of the Events stream
type Recognizer_EventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type recognizerEventsServer struct {
	grpc.ServerStream
}

func (x *recognizerEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterRecognizerServer registers srv on s
func RegisterRecognizerServer(s grpc.ServiceRegistrar, srv RecognizerServer) {
	s.RegisterService(&Recognizer_ServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(RecognizerServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RecognizerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RecognizerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RecognizerServer).Events(m, &recognizerEventsServer{stream})
}

// Recognizer_ServiceDesc is the grpc.ServiceDesc for sphinxvox.v1.Recognizer
var Recognizer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecognizerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("StartListening", func(s RecognizerServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.StartListening(ctx, in)
		}),
		unaryHandler("Stop", func(s RecognizerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Stop(ctx, in)
		}),
		unaryHandler("Cancel", func(s RecognizerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Cancel(ctx, in)
		}),
		unaryHandler("SetSearch", func(s RecognizerServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.SetSearch(ctx, in)
		}),
		unaryHandler("Status", func(s RecognizerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Status(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "sphinxvox/v1/recognizer.proto",
}

// RecognizerClient is the client API for sphinxvox.v1.Recognizer
type RecognizerClient struct {
	cc grpc.ClientConnInterface
}

// NewRecognizerClient wraps a connection
func NewRecognizerClient(cc grpc.ClientConnInterface) *RecognizerClient {
	return &RecognizerClient{cc: cc}
}

func (c *RecognizerClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *RecognizerClient) StartListening(ctx context.Context, search string, timeoutMs int, opts ...grpc.CallOption) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{"search": search, "timeout_ms": timeoutMs})
	if err != nil {
		return false, err
	}
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "StartListening", in, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *RecognizerClient) Stop(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "Stop", &emptypb.Empty{}, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *RecognizerClient) Cancel(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "Cancel", &emptypb.Empty{}, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *RecognizerClient) SetSearch(ctx context.Context, name string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SetSearch", wrapperspb.String(name), &emptypb.Empty{}, opts...)
}

func (c *RecognizerClient) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Status", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Events opens the server stream; call Recv until it fails
func (c *RecognizerClient) Events(ctx context.Context, opts ...grpc.CallOption) (*EventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &Recognizer_ServiceDesc.Streams[0], "/"+ServiceName+"/Events", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventsClient{stream}, nil
}

// EventsClient reads the Events stream
type EventsClient struct {
	grpc.ClientStream
}

func (x *EventsClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
