// Package mls is the boundary to the secure group channel: the component
// that owns group cryptographic state, turns relay events into messages
// and builds outgoing group events.
//
// Two variants exist. Mock keeps group state in process. Remote talks
// gRPC to a dialogmls sidecar, which serves any Channel with NewServer.
package mls

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/matheus3301/dialog/internal/config"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// Channel is the secure group channel. Every method returns an error
// instead of panicking; protocol refusals are *errs.Error of kind Protocol.
type Channel interface {
	// CreateGroup starts a group with the owners of keyPackages and
	// returns one welcome rumor per invitee, in keyPackages order.
	CreateGroup(ctx context.Context, keyPackages []*event.Event, admins []identity.PublicKey, cfg GroupConfig) (*CreateGroupResult, error)
	// ProcessMessage feeds a group event through the group state.
	ProcessMessage(ctx context.Context, ev *event.Event) (*ProcessResult, error)
	// CreateMessage encrypts rumor for the group and returns the signed
	// event to publish.
	CreateMessage(ctx context.Context, handle model.GroupHandle, rumor *event.Event) (*event.Event, error)
	// ProcessWelcome records a welcome that arrived in the given event.
	ProcessWelcome(ctx context.Context, sourceEventID event.ID, welcome *event.Event) error
	// AcceptWelcome joins the group of a pending welcome.
	AcceptWelcome(ctx context.Context, w Welcome) error
	Groups(ctx context.Context) ([]Group, error)
	PendingWelcomes(ctx context.Context) ([]Welcome, error)
	Messages(ctx context.Context, handle model.GroupHandle) ([]Message, error)
	// CreateKeyPackage returns a signed key package event advertising relays.
	CreateKeyPackage(ctx context.Context, relays []string) (*event.Event, error)
	// ParseKeyPackage validates someone else's key package event.
	ParseKeyPackage(ctx context.Context, ev *event.Event) error
	// Reset forgets every group and pending welcome.
	Reset(ctx context.Context) error
}

// GroupConfig describes a new group.
type GroupConfig struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Relays      []string `json:"relays"`
}

// Group is a joined group. Tag is the hex value relays index group
// events under; it is unrelated to Handle.
type Group struct {
	Handle  model.GroupHandle    `json:"handle"`
	Name    string               `json:"name"`
	Epoch   uint64               `json:"epoch"`
	Tag     string               `json:"tag"`
	Members []identity.PublicKey `json:"members"`
	Admins  []identity.PublicKey `json:"admins"`
}

// Welcome is a received invitation that has not been accepted yet.
type Welcome struct {
	SourceEventID event.ID           `json:"source_event_id"`
	Handle        model.GroupHandle  `json:"handle"`
	GroupName     string             `json:"group_name"`
	MemberCount   int                `json:"member_count"`
	Sender        identity.PublicKey `json:"sender"`
	ReceivedAt    time.Time          `json:"received_at"`
}

// Message is a decrypted application message.
type Message struct {
	EventID   event.ID           `json:"event_id"`
	Handle    model.GroupHandle  `json:"handle"`
	Sender    identity.PublicKey `json:"sender"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
}

// ResultKind classifies a processed group event.
type ResultKind int

const (
	ApplicationMessage ResultKind = iota
	Proposal
	Commit
	ExternalJoinProposal
	Unprocessable
)

func (k ResultKind) String() string {
	switch k {
	case ApplicationMessage:
		return "application"
	case Proposal:
		return "proposal"
	case Commit:
		return "commit"
	case ExternalJoinProposal:
		return "external_join_proposal"
	case Unprocessable:
		return "unprocessable"
	}
	return fmt.Sprintf("result(%d)", int(k))
}

// ProcessResult is what ProcessMessage made of an event. Message is set
// for application messages.
type ProcessResult struct {
	Kind    ResultKind        `json:"kind"`
	Handle  model.GroupHandle `json:"handle,omitempty"`
	Message *Message          `json:"message,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// CreateGroupResult is a new group and its welcome rumors. Each welcome
// carries a "p" tag naming its invitee.
type CreateGroupResult struct {
	Group    Group          `json:"group"`
	Welcomes []*event.Event `json:"welcomes"`
}

// FindGroup returns the group with the given handle from a Groups list.
func FindGroup(groups []Group, handle model.GroupHandle) (Group, bool) {
	want := hex.EncodeToString(handle)
	for _, g := range groups {
		if hex.EncodeToString(g.Handle) == want {
			return g, true
		}
	}
	return Group{}, false
}

// Options configures Open.
type Options struct {
	Mode      config.Mode
	Identity  *identity.Identity
	StatePath string
	Socket    string
	Logger    *zap.Logger
	Now       func() time.Time
}

// Open builds the channel variant selected by opts.Mode. The returned
// close function releases the variant's resources.
func Open(opts Options) (Channel, func() error, error) {
	switch opts.Mode {
	case config.ModeMock, "":
		m, err := NewMock(opts.Identity, MockOptions{StatePath: opts.StatePath, Now: opts.Now})
		if err != nil {
			return nil, nil, err
		}
		return m, func() error { return nil }, nil
	case config.ModeReal:
		conn, err := grpc.NewClient("unix://"+opts.Socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial sidecar %s: %w", opts.Socket, err)
		}
		if opts.Logger != nil {
			opts.Logger.Info("using group channel sidecar", zap.String("socket", opts.Socket))
		}
		return NewRemote(conn), conn.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown mls mode %q", opts.Mode)
}
