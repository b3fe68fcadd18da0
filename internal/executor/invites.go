package executor

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/giftwrap"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/model"
)

const probeText = "probe"

func (e *Executor) fetchPendingInvites(ctx context.Context) []model.Msg {
	const op = "fetch_pending_invites"
	filter := event.Filter{Kinds: []event.Kind{event.KindGiftWrap}}.WithTag("p", e.id.PublicKey().String())
	wraps, err := e.relay.Fetch(ctx, filter, e.fetchTimeout)
	if err != nil {
		return e.fail(op, errs.TransportErr(op, err))
	}

	dedup := e.sync.Dedup()
	var (
		processed []event.ID
		failures  error
	)
	for _, wrap := range wraps {
		if dedup.Seen(wrap.ID) {
			continue
		}
		if _, err := dedup.Mark(wrap.ID); err != nil {
			return e.fail(op, errs.StorageErr(op, err))
		}
		processed = append(processed, wrap.ID)
		if err := e.openWelcome(ctx, wrap); err != nil {
			e.logger.Warn("skipping gift wrap", zap.String("event_id", string(wrap.ID)), zap.Error(err))
			failures = multierr.Append(failures, fmt.Errorf("gift wrap %s: %w", wrap.ID.Short(), err))
		}
	}

	var out []model.Msg
	if len(processed) > 0 {
		out = append(out, model.EventsProcessed{IDs: processed})
	}

	// Every welcome the channel still holds is listed, including those
	// whose wrap an earlier fetch already processed.
	invites, err := e.newInvites(ctx, op, &failures)
	if err != nil {
		return append(out, e.fail(op, err)...)
	}
	if len(invites) > 0 {
		out = append(out,
			model.InvitesFetched{Invites: invites},
			e.debug(model.LevelInfo, "fetched pending invites", zap.Int("count", len(invites))))
	}
	return append(out, e.summarize("Fetching invites", failures)...)
}

// newInvites stores and returns an invite for each pending welcome that is
// neither stored nor dismissed.
func (e *Executor) newInvites(ctx context.Context, op string, failures *error) ([]model.PendingInvite, error) {
	pending, err := e.ch.PendingWelcomes(ctx)
	if err != nil {
		return nil, errs.ProtocolErr(op, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	known, err := e.db.DismissedInvites()
	if err != nil {
		return nil, errs.StorageErr(op, err)
	}
	stored, err := e.db.LoadInvites()
	if err != nil {
		return nil, errs.StorageErr(op, err)
	}
	for _, inv := range stored {
		known[inv.SourceEventID] = struct{}{}
	}

	var invites []model.PendingInvite
	for _, w := range pending {
		if _, ok := known[w.SourceEventID]; ok {
			continue
		}
		inv := model.PendingInvite{
			ID:            uuid.NewString(),
			From:          w.Sender,
			GroupName:     w.GroupName,
			SourceEventID: w.SourceEventID,
			Timestamp:     w.ReceivedAt,
		}
		if err := e.db.SaveInvite(inv); err != nil {
			*failures = multierr.Append(*failures, errs.StorageErr(op, err))
			continue
		}
		e.bus.Emit(bus.KindInviteReceived, inv)
		invites = append(invites, inv)
	}
	return invites, nil
}

func (e *Executor) openWelcome(ctx context.Context, wrap *event.Event) error {
	inner, err := giftwrap.Unwrap(e.id, wrap)
	if err != nil {
		return errs.ProtocolErr("unwrap", err)
	}
	if inner.Kind != event.KindWelcome {
		return errs.New(errs.Protocol, "unwrap", "wrapped "+inner.Kind.String()+", want welcome")
	}
	if err := e.ch.ProcessWelcome(ctx, wrap.ID, inner); err != nil {
		return errs.ProtocolErr("process_welcome", err)
	}
	return nil
}

func (e *Executor) acceptInvite(ctx context.Context, inv model.PendingInvite) []model.Msg {
	const op = "accept_invite"
	source := zap.String("event_id", string(inv.SourceEventID))

	pending, err := e.ch.PendingWelcomes(ctx)
	if err != nil {
		return e.fail(op, errs.ProtocolErr(op, err), source)
	}
	i := slices.IndexFunc(pending, func(w mls.Welcome) bool { return w.SourceEventID == inv.SourceEventID })
	if i < 0 {
		return e.fail(op, errs.InconsistencyErr(op, "invite no longer resolvable"), source)
	}
	welcome := pending[i]
	if err := e.ch.AcceptWelcome(ctx, welcome); err != nil {
		return e.fail(op, errs.Wrap(errs.Protocol, op, err), source)
	}

	group, err := e.probe(ctx, welcome.Handle)
	if err != nil {
		return e.fail(op, errs.Wrapf(errs.Inconsistency, op, err, "joined group is not usable"), source)
	}

	name := inv.GroupName
	if name == "" {
		name = "Group " + group.Handle.String()[:8]
	}
	conv := model.Conversation{
		ID:           group.Handle.ConversationID(),
		GroupHandle:  group.Handle,
		Name:         name,
		Participants: group.Members,
	}
	if err := e.db.SaveConversation(conv); err != nil {
		return e.fail(op, errs.StorageErr(op, err), source)
	}
	if err := e.db.DeleteInvite(inv.SourceEventID); err != nil {
		return e.fail(op, errs.StorageErr(op, err), source)
	}
	e.bus.Emit(bus.KindInviteAccepted, conv)
	return []model.Msg{
		model.InviteAccepted{SourceEventID: inv.SourceEventID, Conversation: conv},
		e.debug(model.LevelInfo, "joined "+name, source, zap.String("conversation", string(conv.ID))),
	}
}

// probe checks that a freshly joined group is listed and can encrypt. The
// probe event is never published.
func (e *Executor) probe(ctx context.Context, handle model.GroupHandle) (mls.Group, error) {
	groups, err := e.ch.Groups(ctx)
	if err != nil {
		return mls.Group{}, err
	}
	group, ok := mls.FindGroup(groups, handle)
	if !ok {
		return mls.Group{}, fmt.Errorf("group %s missing after accept", handle)
	}
	rumor := event.New(event.KindChat, e.now(), probeText).Seal(e.id.PublicKey())
	if _, err := e.ch.CreateMessage(ctx, handle, rumor); err != nil {
		return mls.Group{}, err
	}
	return group, nil
}

func (e *Executor) dismissInvite(source event.ID) []model.Msg {
	const op = "dismiss_invite"
	if err := e.db.DismissInvite(source); err != nil {
		return e.fail(op, errs.StorageErr(op, err), zap.String("event_id", string(source)))
	}
	return nil
}
