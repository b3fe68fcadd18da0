package mls

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// ServiceName is the gRPC service exposing a Channel. Requests and
// responses are JSON documents carried in google.protobuf.BytesValue.
const ServiceName = "dialog.mls.v1.Channel"

type createGroupRequest struct {
	KeyPackages []*event.Event       `json:"key_packages"`
	Admins      []identity.PublicKey `json:"admins"`
	Config      GroupConfig          `json:"config"`
}

type eventRequest struct {
	Event *event.Event `json:"event"`
}

type createMessageRequest struct {
	Handle model.GroupHandle `json:"handle"`
	Rumor  *event.Event      `json:"rumor"`
}

type processWelcomeRequest struct {
	SourceEventID event.ID     `json:"source_event_id"`
	Welcome       *event.Event `json:"welcome"`
}

type handleRequest struct {
	Handle model.GroupHandle `json:"handle"`
}

type keyPackageRequest struct {
	Relays []string `json:"relays"`
}

type empty struct{}

var channelMethods = []grpc.MethodDesc{
	unary("CreateGroup", func(ctx context.Context, ch Channel, r createGroupRequest) (*CreateGroupResult, error) {
		return ch.CreateGroup(ctx, r.KeyPackages, r.Admins, r.Config)
	}),
	unary("ProcessMessage", func(ctx context.Context, ch Channel, r eventRequest) (*ProcessResult, error) {
		return ch.ProcessMessage(ctx, r.Event)
	}),
	unary("CreateMessage", func(ctx context.Context, ch Channel, r createMessageRequest) (*event.Event, error) {
		return ch.CreateMessage(ctx, r.Handle, r.Rumor)
	}),
	unary("ProcessWelcome", func(ctx context.Context, ch Channel, r processWelcomeRequest) (empty, error) {
		return empty{}, ch.ProcessWelcome(ctx, r.SourceEventID, r.Welcome)
	}),
	unary("AcceptWelcome", func(ctx context.Context, ch Channel, w Welcome) (empty, error) {
		return empty{}, ch.AcceptWelcome(ctx, w)
	}),
	unary("Groups", func(ctx context.Context, ch Channel, _ empty) ([]Group, error) {
		return ch.Groups(ctx)
	}),
	unary("PendingWelcomes", func(ctx context.Context, ch Channel, _ empty) ([]Welcome, error) {
		return ch.PendingWelcomes(ctx)
	}),
	unary("Messages", func(ctx context.Context, ch Channel, r handleRequest) ([]Message, error) {
		return ch.Messages(ctx, r.Handle)
	}),
	unary("CreateKeyPackage", func(ctx context.Context, ch Channel, r keyPackageRequest) (*event.Event, error) {
		return ch.CreateKeyPackage(ctx, r.Relays)
	}),
	unary("ParseKeyPackage", func(ctx context.Context, ch Channel, r eventRequest) (empty, error) {
		return empty{}, ch.ParseKeyPackage(ctx, r.Event)
	}),
	unary("Reset", func(ctx context.Context, ch Channel, _ empty) (empty, error) {
		return empty{}, ch.Reset(ctx)
	}),
}

var channelServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Channel)(nil),
	Methods:     channelMethods,
	Metadata:    "dialog/mls/v1/channel",
}

// Register exposes ch on srv.
func Register(srv *grpc.Server, ch Channel) {
	srv.RegisterService(&channelServiceDesc, ch)
}

// NewServer returns a gRPC server serving ch, logging each failed call.
func NewServer(ch Channel, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(logFailures(logger)))
	Register(srv, ch)
	return srv
}

func logFailures(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("channel call failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return resp, err
	}
}

func unary[Req, Resp any](name string, fn func(context.Context, Channel, Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := json.Unmarshal(req.(*wrapperspb.BytesValue).GetValue(), &r); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "decode %s request: %v", name, err)
				}
				resp, err := fn(ctx, srv.(Channel), r)
				if err != nil {
					return nil, errs.ToStatus(err)
				}
				out, err := json.Marshal(resp)
				if err != nil {
					return nil, status.Errorf(codes.Internal, "encode %s response: %v", name, err)
				}
				return wrapperspb.Bytes(out), nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		},
	}
}
