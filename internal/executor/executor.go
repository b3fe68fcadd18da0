// Package executor performs the side effects the reducer asks for. Each
// command runs to completion and reports back as Msgs; failures become
// CommandFailed carrying a classified error.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/status"
	"github.com/matheus3301/dialog/internal/store"
	dsync "github.com/matheus3301/dialog/internal/sync"
)

// Relay is the transport the executor publishes and fetches through.
type Relay interface {
	Fetch(ctx context.Context, filter event.Filter, timeout time.Duration) ([]*event.Event, error)
	Send(ctx context.Context, ev *event.Event) error
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Status() status.State
	URL() string
}

// Options wires an Executor.
type Options struct {
	Identity     *identity.Identity
	Channel      mls.Channel
	Relay        Relay
	Store        *store.DB
	Sync         *dsync.Synchronizer
	Bus          *bus.Bus
	Logger       *zap.Logger
	Now          func() time.Time
	FetchTimeout time.Duration
}

// Executor owns every handle a command may touch. It is driven by a
// single goroutine, the event loop.
type Executor struct {
	id     *identity.Identity
	ch     mls.Channel
	relay  Relay
	db     *store.DB
	sync   *dsync.Synchronizer
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	fetchTimeout time.Duration
}

// New creates an executor.
func New(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	return &Executor{
		id:           opts.Identity,
		ch:           opts.Channel,
		relay:        opts.Relay,
		db:           opts.Store,
		sync:         opts.Sync,
		bus:          opts.Bus,
		logger:       opts.Logger.Named("executor"),
		now:          opts.Now,
		fetchTimeout: opts.FetchTimeout,
	}
}

// Execute runs cmd and returns the Msgs it produced, in order. Batches
// run their commands sequentially.
func (e *Executor) Execute(ctx context.Context, cmd model.Cmd) []model.Msg {
	var out []model.Msg
	for _, c := range model.Flatten(cmd) {
		out = append(out, e.run(ctx, c)...)
	}
	return out
}

func (e *Executor) run(ctx context.Context, cmd model.Cmd) []model.Msg {
	switch c := cmd.(type) {
	case model.Rehydrate:
		return e.rehydrate()
	case model.ConnectRelay:
		return e.connectRelay(ctx, false)
	case model.RescanRelays:
		return e.connectRelay(ctx, true)
	case model.SendMessage:
		return e.sendMessage(ctx, c)
	case model.CreateMlsGroup:
		return e.createGroup(ctx, c.ContactID)
	case model.FetchPendingInvites:
		return e.fetchPendingInvites(ctx)
	case model.FetchNewMessages:
		return e.fetchNewMessages(ctx)
	case model.AcceptPendingInvite:
		return e.acceptInvite(ctx, c.Invite)
	case model.DismissPendingInvite:
		return e.dismissInvite(c.SourceEventID)
	case model.SaveContact:
		return e.saveContact(c)
	case model.SaveMessage:
		return e.saveMessage(c.Message)
	case model.SaveConversation:
		return e.saveConversation(c.Conversation)
	case model.LoadConversationHistory:
		return e.loadHistory(c.ID)
	case model.LoadContacts:
		return e.loadContacts()
	case model.LoadConversations:
		return e.loadConversations()
	case model.PublishKeyPackage:
		return e.publishKeyPackage(ctx)
	case model.ResetAllState:
		return e.resetAll(ctx)
	case model.DeleteAllContacts:
		return e.deleteContacts()
	case model.DeleteAllConversations:
		return e.deleteConversations()
	case model.Exit:
		return nil
	}
	e.logger.Warn("unhandled command", zap.String("cmd", fmt.Sprintf("%T", cmd)))
	return nil
}

// fail logs err and reports it to the reducer.
func (e *Executor) fail(op string, err error, fields ...zap.Field) []model.Msg {
	e.logger.Error("command failed", append(fields, zap.String("op", op), zap.Error(err))...)
	return []model.Msg{model.CommandFailed{Op: op, Err: err, At: e.now()}}
}

func (e *Executor) notify(level model.Level, format string, args ...any) model.Msg {
	return model.Notify{Level: level, Text: fmt.Sprintf(format, args...), At: e.now()}
}

// debug logs text and mirrors it into the debug log view.
func (e *Executor) debug(level model.Level, text string, fields ...zap.Field) model.Msg {
	switch level {
	case model.LevelError:
		e.logger.Error(text, fields...)
	case model.LevelWarn:
		e.logger.Warn(text, fields...)
	default:
		e.logger.Info(text, fields...)
	}
	return model.LogMessage{Entry: model.LogEntry{At: e.now(), Level: level, Text: text}}
}

// summarize renders collected per-item failures as one warning toast.
func (e *Executor) summarize(what string, failures error) []model.Msg {
	list := multierr.Errors(failures)
	if len(list) == 0 {
		return nil
	}
	text := fmt.Sprintf("%s: %d error(s): %v", what, len(list), list[0])
	if len(list) > 1 {
		text += fmt.Sprintf(" (and %d more)", len(list)-1)
	}
	return []model.Msg{e.notify(model.LevelWarn, "%s", text)}
}
