package executor

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/model"
	dsync "github.com/matheus3301/dialog/internal/sync"
)

func (e *Executor) sendMessage(ctx context.Context, c model.SendMessage) []model.Msg {
	const op = "send_message"
	convField := zap.String("conversation", string(c.ConversationID))

	conv, err := e.db.LoadConversation(c.ConversationID)
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err), convField)
	}
	if conv == nil {
		return e.fail(op, errs.InconsistencyErr(op, "conversation "+string(c.ConversationID)+" is not stored"), convField)
	}
	if !conv.CanReceive() {
		return e.fail(op, errs.InvalidInputErr(op, "conversation has no group"), convField)
	}

	groups, err := e.ch.Groups(ctx)
	if err != nil {
		return e.fail(op, errs.ProtocolErr(op, err), convField)
	}
	group, ok := mls.FindGroup(groups, conv.GroupHandle)
	if !ok {
		return e.fail(op, errs.InconsistencyErr(op, "group channel does not know conversation "+conv.Name), convField)
	}

	// Catch up first so the message is encrypted at the current epoch.
	var out []model.Msg
	res, err := e.sync.SyncGroup(ctx, group)
	if err != nil {
		return append(out, e.fail(op, err, convField)...)
	}
	out = append(out, e.syncMsgs(res)...)

	rumor := event.New(event.KindChat, e.now(), c.Text).Seal(e.id.PublicKey())
	ev, err := e.ch.CreateMessage(ctx, group.Handle, rumor)
	if err != nil {
		return append(out, e.fail(op, errs.ProtocolErr(op, err), convField)...)
	}
	if err := e.db.RecordOutbox(ev.ID, conv.ID, c.Text); err != nil {
		return append(out, e.fail(op, errs.StorageErr(op, err), convField)...)
	}

	idField := zap.String("event_id", string(ev.ID))
	if err := e.relay.Send(ctx, ev); err != nil {
		if merr := e.db.MarkOutboxFailed(ev.ID, err.Error()); merr != nil {
			e.logger.Error("mark outbox failed", idField, zap.Error(merr))
		}
		return append(out, e.fail(op, errs.TransportErr(op, err), convField, idField)...)
	}
	if err := e.db.MarkOutboxSent(ev.ID); err != nil {
		e.logger.Error("mark outbox sent", idField, zap.Error(err))
	}

	// Our own event comes back from the relay on the next sync; marking it
	// now keeps it from being fed to the group channel twice.
	if _, err := e.sync.Dedup().Mark(ev.ID); err != nil {
		return append(out, e.fail(op, errs.StorageErr(op, err), idField)...)
	}
	msg := model.ChatMessage{
		ID:             ev.ID,
		ConversationID: conv.ID,
		Sender:         e.id.PublicKey(),
		Content:        c.Text,
		Timestamp:      rumor.Time(),
		IsOwn:          true,
	}
	if reflected, err := e.ch.ProcessMessage(ctx, ev); err != nil {
		e.logger.Warn("self reflection failed", idField, zap.Error(err))
	} else if reflected.Kind == mls.ApplicationMessage && reflected.Message != nil {
		msg = dsync.ChatMessage(*reflected.Message, e.id.PublicKey())
		msg.ConversationID = conv.ID
	}

	e.bus.Emit(bus.KindMessageSent, msg)
	return append(out,
		model.EventsProcessed{IDs: []event.ID{ev.ID}},
		model.MessageReceived{Message: msg},
	)
}

func (e *Executor) fetchNewMessages(ctx context.Context) []model.Msg {
	const op = "fetch_new_messages"
	groups, err := e.ch.Groups(ctx)
	if err != nil {
		return e.fail(op, errs.ProtocolErr(op, err))
	}

	var (
		out      []model.Msg
		failures error
		received int
	)
	for _, g := range groups {
		convID := g.Handle.ConversationID()
		conv, err := e.db.LoadConversation(convID)
		if err != nil {
			failures = multierr.Append(failures, errs.StorageErr(op, err))
			continue
		}
		if conv == nil {
			err := errs.InconsistencyErr(op, "group "+g.Tag+" has no stored conversation")
			e.logger.Warn("skipping group", zap.String("conversation", string(convID)), zap.Error(err))
			failures = multierr.Append(failures, err)
			continue
		}
		res, err := e.sync.SyncGroup(ctx, g)
		if err != nil {
			failures = multierr.Append(failures, err)
			continue
		}
		for _, perEvent := range res.Errors {
			failures = multierr.Append(failures, perEvent)
		}
		received += len(res.Messages)
		out = append(out, e.syncMsgs(res)...)
	}

	if received > 0 {
		out = append(out, e.debug(model.LevelInfo, "received new messages", zap.Int("count", received)))
	}
	return append(out, e.summarize("Fetching messages", failures)...)
}

// syncMsgs reports a sync result: processed ids first, then messages.
func (e *Executor) syncMsgs(res *dsync.Result) []model.Msg {
	if res == nil {
		return nil
	}
	var out []model.Msg
	if len(res.Processed) > 0 {
		out = append(out, model.EventsProcessed{IDs: res.Processed})
	}
	for _, m := range res.Messages {
		e.bus.Emit(bus.KindMessageReceived, m)
		out = append(out, model.MessageReceived{Message: m})
	}
	return out
}
