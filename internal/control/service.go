// Package control exposes a running client over gRPC on its identity's
// unix socket: status, an on-demand poll and a stream of bus events.
package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/status"
	"github.com/matheus3301/dialog/internal/store"
)

// ServiceName is the gRPC name of the control service.
const ServiceName = "dialog.v1.Control"

// Poster accepts Msgs for the event loop.
type Poster interface {
	Post(msg model.Msg)
}

// StatsSource reports row counts.
type StatsSource interface {
	Stats() (store.Stats, error)
}

// SyncSource reports the most recent group sync.
type SyncSource interface {
	LastSync() (time.Time, error)
}

// Deps are the parts of the client the service reads from.
type Deps struct {
	Session  string
	Self     identity.PublicKey
	RelayURL string
	Machine  *status.Machine
	Stats    StatsSource
	Sync     SyncSource
	Loop     Poster
	Bus      *bus.Bus
	Logger   *zap.Logger
}

// Service implements dialog.v1.Control.
type Service struct {
	deps      Deps
	startedAt time.Time
	logger    *zap.Logger
}

// NewService creates the control service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{deps: d, startedAt: time.Now(), logger: d.Logger.Named("control")}
}

// GetStatus describes the client: identity, relay status, counts and last sync.
func (s *Service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	fields := map[string]any{
		"session":   s.deps.Session,
		"identity":  s.deps.Self.String(),
		"relay_url": s.deps.RelayURL,
		"uptime_ms": float64(time.Since(s.startedAt).Milliseconds()),
	}
	if s.deps.Machine != nil {
		fields["relay_status"] = string(s.deps.Machine.Current())
		fields["relay_status_since"] = s.deps.Machine.Since().UTC().Format(time.RFC3339)
	}
	if s.deps.Stats != nil {
		st, err := s.deps.Stats.Stats()
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "read stats: %v", err)
		}
		fields["contacts"] = float64(st.Contacts)
		fields["conversations"] = float64(st.Conversations)
		fields["messages"] = float64(st.Messages)
		fields["processed_events"] = float64(st.Processed)
		fields["pending_invites"] = float64(st.Invites)
	}
	if s.deps.Sync != nil {
		last, err := s.deps.Sync.LastSync()
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "read checkpoints: %v", err)
		}
		if !last.IsZero() {
			fields["last_sync"] = last.UTC().Format(time.RFC3339)
		}
	}
	return structpb.NewStruct(fields)
}

// Poll asks the loop to fetch invites and messages now.
func (s *Service) Poll(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.deps.Loop == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "event loop not running")
	}
	s.deps.Loop.Post(model.PollRelay{IncludeInvites: true})
	s.logger.Info("poll requested")
	return &emptypb.Empty{}, nil
}

// Watch streams bus events whose kind starts with the request's "prefix"
// field, every event when it is empty.
func (s *Service) Watch(req *structpb.Struct, stream grpc.ServerStream) error {
	if s.deps.Bus == nil {
		return grpcstatus.Error(codes.Unavailable, "event bus not running")
	}
	prefix := req.GetFields()["prefix"].GetStringValue()
	ch, unsub := s.deps.Bus.Subscribe(prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			env, err := envelope(s.deps.Session, evt)
			if err != nil {
				s.logger.Warn("skipping event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// envelope renders a bus event as a Struct. The payload goes through JSON
// so any payload type with JSON tags or text marshalers is carried.
func envelope(session string, evt bus.Event) (*structpb.Struct, error) {
	var payload any
	if evt.Payload != nil {
		raw, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
	}
	return structpb.NewStruct(map[string]any{
		"event_id":       uuid.NewString(),
		"session":        session,
		"kind":           evt.Kind,
		"occurred_at_ms": float64(evt.Timestamp.UnixMilli()),
		"payload":        payload,
	})
}

type controlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Poll(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Watch(*structpb.Struct, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(controlServer).GetStatus(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetStatus"}
				return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
					return srv.(controlServer).GetStatus(ctx, req.(*emptypb.Empty))
				})
			},
		},
		{
			MethodName: "Poll",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(controlServer).Poll(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Poll"}
				return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
					return srv.(controlServer).Poll(ctx, req.(*emptypb.Empty))
				})
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(controlServer).Watch(in, stream)
			},
		},
	},
	Metadata: "dialog/v1/control",
}

// Register exposes svc on srv.
func Register(srv *grpc.Server, svc *Service) {
	srv.RegisterService(&serviceDesc, svc)
}
