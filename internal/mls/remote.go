package mls

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// Remote is a Channel served by a dialogmls sidecar.
type Remote struct {
	conn grpc.ClientConnInterface
}

var _ Channel = (*Remote)(nil)

// NewRemote wraps a connection to a server registered with Register.
func NewRemote(conn grpc.ClientConnInterface) *Remote {
	return &Remote{conn: conn}
}

func call[Resp any](ctx context.Context, r *Remote, method string, req any) (Resp, error) {
	var resp Resp
	body, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(wrapperspb.BytesValue)
	if err := r.conn.Invoke(ctx, "/"+ServiceName+"/"+method, wrapperspb.Bytes(body), out); err != nil {
		return resp, errs.FromStatus(method, err)
	}
	if err := json.Unmarshal(out.GetValue(), &resp); err != nil {
		return resp, errs.ProtocolErr(method, fmt.Errorf("decode response: %w", err))
	}
	return resp, nil
}

func (r *Remote) CreateGroup(ctx context.Context, keyPackages []*event.Event, admins []identity.PublicKey, cfg GroupConfig) (*CreateGroupResult, error) {
	return call[*CreateGroupResult](ctx, r, "CreateGroup", createGroupRequest{KeyPackages: keyPackages, Admins: admins, Config: cfg})
}

func (r *Remote) ProcessMessage(ctx context.Context, ev *event.Event) (*ProcessResult, error) {
	return call[*ProcessResult](ctx, r, "ProcessMessage", eventRequest{Event: ev})
}

func (r *Remote) CreateMessage(ctx context.Context, handle model.GroupHandle, rumor *event.Event) (*event.Event, error) {
	return call[*event.Event](ctx, r, "CreateMessage", createMessageRequest{Handle: handle, Rumor: rumor})
}

func (r *Remote) ProcessWelcome(ctx context.Context, sourceEventID event.ID, welcome *event.Event) error {
	_, err := call[empty](ctx, r, "ProcessWelcome", processWelcomeRequest{SourceEventID: sourceEventID, Welcome: welcome})
	return err
}

func (r *Remote) AcceptWelcome(ctx context.Context, w Welcome) error {
	_, err := call[empty](ctx, r, "AcceptWelcome", w)
	return err
}

func (r *Remote) Groups(ctx context.Context) ([]Group, error) {
	return call[[]Group](ctx, r, "Groups", empty{})
}

func (r *Remote) PendingWelcomes(ctx context.Context) ([]Welcome, error) {
	return call[[]Welcome](ctx, r, "PendingWelcomes", empty{})
}

func (r *Remote) Messages(ctx context.Context, handle model.GroupHandle) ([]Message, error) {
	return call[[]Message](ctx, r, "Messages", handleRequest{Handle: handle})
}

func (r *Remote) CreateKeyPackage(ctx context.Context, relays []string) (*event.Event, error) {
	return call[*event.Event](ctx, r, "CreateKeyPackage", keyPackageRequest{Relays: relays})
}

func (r *Remote) ParseKeyPackage(ctx context.Context, ev *event.Event) error {
	_, err := call[empty](ctx, r, "ParseKeyPackage", eventRequest{Event: ev})
	return err
}

func (r *Remote) Reset(ctx context.Context) error {
	_, err := call[empty](ctx, r, "Reset", empty{})
	return err
}
