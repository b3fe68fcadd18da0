// Package sync pulls group events from the relay and feeds each one to the
// group channel exactly once.
package sync

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/model"
)

// Fetcher reads events from a relay.
type Fetcher interface {
	Fetch(ctx context.Context, filter event.Filter, timeout time.Duration) ([]*event.Event, error)
}

// Counts tallies how fetched events were classified.
type Counts struct {
	Fetched       int
	Skipped       int
	Application   int
	Commits       int
	Proposals     int
	ExternalJoins int
	Unprocessable int
	Failed        int
}

// Result is the outcome of syncing one group. Errors holds per-event
// failures; they do not fail the sync.
type Result struct {
	Messages  []model.ChatMessage
	Processed []event.ID
	Errors    []error
	Counts    Counts
}

// Options configures a Synchronizer.
type Options struct {
	Self         identity.PublicKey
	FetchTimeout time.Duration
	Bus          *bus.Bus
	Logger       *zap.Logger
	Now          func() time.Time
}

// Synchronizer syncs groups one at a time. It is not safe for concurrent
// use; the executor serializes calls.
type Synchronizer struct {
	ch     mls.Channel
	relay  Fetcher
	dedup  *Dedup
	recon  *Reconciler
	opts   Options
	logger *zap.Logger
}

// New creates a Synchronizer.
func New(ch mls.Channel, relay Fetcher, dedup *Dedup, recon *Reconciler, opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{
		ch:     ch,
		relay:  relay,
		dedup:  dedup,
		recon:  recon,
		opts:   opts,
		logger: opts.Logger.Named("sync"),
	}
}

// Dedup returns the processed-event set shared with invite fetching.
func (s *Synchronizer) Dedup() *Dedup { return s.dedup }

// GroupFilter selects the relay events of the group with tag.
func GroupFilter(tag string) event.Filter {
	return event.Filter{Kinds: []event.Kind{event.KindGroupMessage}}.WithTag("h", tag)
}

// SyncGroup fetches the group's events and processes the unseen ones in
// created_at order. Only a failed fetch or a failed mark returns an error.
func (s *Synchronizer) SyncGroup(ctx context.Context, g mls.Group) (*Result, error) {
	const op = "sync_group"
	log := s.logger.With(zap.String("group", g.Tag), zap.String("conversation", string(g.Handle.ConversationID())))

	events, err := s.relay.Fetch(ctx, GroupFilter(g.Tag), s.opts.FetchTimeout)
	if err != nil {
		log.Warn("fetch group events failed", zap.Error(err))
		s.emit(bus.KindSyncFailed, g, err)
		if errs.KindOf(err) == errs.Protocol {
			return nil, err
		}
		return nil, errs.TransportErr(op, err)
	}
	slices.SortStableFunc(events, func(a, b *event.Event) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) })

	res := &Result{}
	res.Counts.Fetched = len(events)
	for _, ev := range events {
		if s.dedup.Seen(ev.ID) {
			res.Counts.Skipped++
			continue
		}
		// A forged copy must not claim the id of the genuine event.
		if err := ev.Verify(); err != nil {
			res.Counts.Failed++
			res.Errors = append(res.Errors, errs.ProtocolErr(op, fmt.Errorf("event %s: %w", ev.ID.Short(), err)))
			log.Warn("dropping unverifiable event", zap.String("event_id", string(ev.ID)), zap.Error(err))
			continue
		}
		if _, err := s.dedup.Mark(ev.ID); err != nil {
			log.Error("mark processed failed", zap.String("event_id", string(ev.ID)), zap.Error(err))
			return res, errs.StorageErr(op, err)
		}
		res.Processed = append(res.Processed, ev.ID)

		out, err := s.ch.ProcessMessage(ctx, ev)
		if err != nil {
			res.Counts.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("event %s: %w", ev.ID.Short(), err))
			log.Warn("process group event failed", zap.String("event_id", string(ev.ID)), zap.Error(err))
			continue
		}
		s.classify(res, g, ev, out)
	}

	if err := s.recon.MarkGroupSynced(g.Tag, s.opts.Now()); err != nil {
		log.Error("write checkpoint failed", zap.Error(err))
		res.Errors = append(res.Errors, errs.StorageErr(op, err))
	}
	log.Debug("group synced",
		zap.Int("fetched", res.Counts.Fetched),
		zap.Int("new", len(res.Processed)),
		zap.Int("messages", len(res.Messages)),
		zap.Int("errors", len(res.Errors)))
	s.emit(bus.KindSyncCompleted, g, res.Counts)
	return res, nil
}

func (s *Synchronizer) classify(res *Result, g mls.Group, ev *event.Event, out *mls.ProcessResult) {
	switch out.Kind {
	case mls.ApplicationMessage:
		if out.Message == nil {
			res.Counts.Unprocessable++
			res.Errors = append(res.Errors, errs.New(errs.Protocol, "process_message", "application result without message"))
			return
		}
		res.Counts.Application++
		res.Messages = append(res.Messages, ChatMessage(*out.Message, s.opts.Self))
	case mls.Commit:
		res.Counts.Commits++
	case mls.Proposal:
		res.Counts.Proposals++
	case mls.ExternalJoinProposal:
		res.Counts.ExternalJoins++
	default:
		res.Counts.Unprocessable++
		res.Errors = append(res.Errors, errs.New(errs.Protocol, "process_message",
			fmt.Sprintf("event %s in group %s unprocessable: %s", ev.ID.Short(), g.Tag, out.Reason)))
	}
}

// ChatMessage converts a decrypted group message for the conversation view.
func ChatMessage(m mls.Message, self identity.PublicKey) model.ChatMessage {
	return model.ChatMessage{
		ID:             m.EventID,
		ConversationID: m.Handle.ConversationID(),
		Sender:         m.Sender,
		Content:        m.Content,
		Timestamp:      m.CreatedAt,
		IsOwn:          m.Sender == self,
	}
}

func (s *Synchronizer) emit(kind string, g mls.Group, payload any) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Emit(kind, map[string]any{"group": g.Tag, "result": payload})
}
