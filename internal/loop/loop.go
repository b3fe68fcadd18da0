// Package loop drives the client: one goroutine takes Msgs from the
// mailbox, applies model.Update, runs the resulting Cmd through the
// executor and publishes the new state.
package loop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/status"
)

// Executor runs a Cmd and reports its outcome as Msgs.
type Executor interface {
	Execute(ctx context.Context, cmd model.Cmd) []model.Msg
}

// Options configures a Loop.
type Options struct {
	Executor Executor
	Initial  model.State
	// Init runs before the first Msg, typically Rehydrate and ConnectRelay.
	Init            model.Cmd
	TickInterval    time.Duration
	FetchInterval   time.Duration
	InvitePollEvery int
	// Bus, when set, feeds relay status changes back as RelayStatusChanged.
	Bus    *bus.Bus
	Logger *zap.Logger
}

// Loop owns the State. Only Run's goroutine touches it; everyone else
// sees snapshots.
type Loop struct {
	opts    Options
	mailbox *Mailbox
	logger  *zap.Logger

	state model.State

	mu        sync.RWMutex
	snapshot  model.State
	observers []func(model.State)
}

// New creates a loop holding opts.Initial.
func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = 5 * time.Second
	}
	if opts.InvitePollEvery <= 0 {
		opts.InvitePollEvery = 6
	}
	return &Loop{
		opts:     opts,
		mailbox:  NewMailbox(),
		logger:   opts.Logger.Named("loop"),
		state:    opts.Initial,
		snapshot: opts.Initial,
	}
}

// Post enqueues msg without blocking.
func (l *Loop) Post(msg model.Msg) { l.mailbox.Post(msg) }

// Snapshot returns the state published after the last handled Msg.
func (l *Loop) Snapshot() model.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Observe registers fn to receive every published snapshot. fn runs on the
// loop goroutine and must not block.
func (l *Loop) Observe(fn func(model.State)) {
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

// Run processes Msgs until an Exit command or ctx ends. Exit returns nil.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	l.startTasks(ctx, &wg)

	if l.execute(ctx, l.opts.Init) {
		l.publish()
		return nil
	}
	l.publish()

	for {
		msg, err := l.mailbox.Receive(ctx)
		if err != nil {
			return err
		}
		exit := l.dispatch(ctx, msg)
		l.publish()
		if exit {
			l.logger.Info("loop exiting")
			return nil
		}
	}
}

// dispatch applies msg and, depth first, every Msg its Cmd produces. It
// reports whether an Exit was reached.
func (l *Loop) dispatch(ctx context.Context, msg model.Msg) bool {
	next, cmd := model.Update(l.state, msg)
	l.state = next
	return l.execute(ctx, cmd)
}

func (l *Loop) execute(ctx context.Context, cmd model.Cmd) bool {
	for _, c := range model.Flatten(cmd) {
		if _, ok := c.(model.Exit); ok {
			return true
		}
		for _, follow := range l.opts.Executor.Execute(ctx, c) {
			if l.dispatch(ctx, follow) {
				return true
			}
		}
	}
	return false
}

func (l *Loop) publish() {
	l.mu.Lock()
	l.snapshot = l.state
	observers := l.observers
	l.mu.Unlock()
	for _, fn := range observers {
		fn(l.state)
	}
}

func (l *Loop) startTasks(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.tick(ctx)
	}()
	go func() {
		defer wg.Done()
		l.poll(ctx)
	}()
	if l.opts.Bus != nil {
		ch, unsub := l.opts.Bus.Subscribe("relay.", 16)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsub()
			l.forwardStatus(ctx, ch)
		}()
	}
}

func (l *Loop) tick(ctx context.Context) {
	t := time.NewTicker(l.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			l.Post(model.Tick{Now: now})
		case <-ctx.Done():
			return
		}
	}
}

// poll asks for new messages every FetchInterval and for invites every
// InvitePollEvery-th time.
func (l *Loop) poll(ctx context.Context) {
	t := time.NewTicker(l.opts.FetchInterval)
	defer t.Stop()
	for n := 1; ; n++ {
		select {
		case <-t.C:
			l.Post(model.PollRelay{IncludeInvites: n%l.opts.InvitePollEvery == 0})
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) forwardStatus(ctx context.Context, ch <-chan bus.Event) {
	for {
		select {
		case evt := <-ch:
			if change, ok := evt.Payload.(status.StatusChange); ok {
				l.Post(model.RelayStatusChanged{Status: change.To})
			}
		case <-ctx.Done():
			return
		}
	}
}
