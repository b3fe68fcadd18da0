package executor

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/status"
)

func (e *Executor) rehydrate() []model.Msg {
	const op = "rehydrate"
	contacts, err := e.db.LoadContacts()
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	convs, err := e.db.LoadConversations()
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	invites, err := e.db.LoadInvites()
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	processed, err := e.db.ProcessedIDs()
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	return []model.Msg{
		model.Rehydrated{Contacts: contacts, Conversations: convs, Invites: invites, ProcessedIDs: processed},
		e.debug(model.LevelInfo, "state loaded",
			zap.Int("contacts", len(contacts)),
			zap.Int("conversations", len(convs)),
			zap.Int("invites", len(invites)),
			zap.Int("processed", len(processed))),
	}
}

func (e *Executor) saveContact(c model.SaveContact) []model.Msg {
	const op = "save_contact"
	saved, err := e.db.SaveContact(model.Contact{
		ID:          model.ContactID(uuid.NewString()),
		PublicKey:   c.PublicKey,
		DisplayName: c.DisplayName,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	return []model.Msg{model.ContactSaved{Contact: saved}}
}

func (e *Executor) saveMessage(m model.ChatMessage) []model.Msg {
	const op = "save_message"
	if _, err := e.db.SaveMessage(m); err != nil {
		return e.fail(op, errs.StorageErr(op, err), zap.String("event_id", string(m.ID)))
	}
	return nil
}

func (e *Executor) saveConversation(c model.Conversation) []model.Msg {
	const op = "save_conversation"
	if err := e.db.SaveConversation(c); err != nil {
		return e.fail(op, errs.StorageErr(op, err), zap.String("conversation", string(c.ID)))
	}
	return nil
}

func (e *Executor) loadHistory(id model.ConversationID) []model.Msg {
	const op = "load_history"
	msgs, err := e.db.LoadMessages(id)
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err), zap.String("conversation", string(id)))
	}
	return []model.Msg{model.HistoryLoaded{ConversationID: id, Messages: msgs}}
}

func (e *Executor) loadContacts() []model.Msg {
	const op = "load_contacts"
	contacts, err := e.db.LoadContacts()
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	return []model.Msg{model.ContactsLoaded{Contacts: contacts}}
}

func (e *Executor) loadConversations() []model.Msg {
	const op = "load_conversations"
	convs, err := e.db.LoadConversations()
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	return []model.Msg{model.ConversationsLoaded{Conversations: convs}}
}

// resetAll clears local state and the group channel. Processed event ids
// survive so old events are not replayed into the fresh channel.
func (e *Executor) resetAll(ctx context.Context) []model.Msg {
	const op = "reset_all_state"
	if err := e.db.ClearAll(); err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	if err := e.ch.Reset(ctx); err != nil {
		return e.fail(op, errs.ProtocolErr(op, err))
	}
	e.bus.Emit(bus.KindStateReset, nil)
	return []model.Msg{model.StateReset{}, e.debug(model.LevelWarn, "all state reset")}
}

func (e *Executor) deleteContacts() []model.Msg {
	const op = "delete_contacts"
	if err := e.db.ClearContacts(); err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	return []model.Msg{model.ContactsCleared{}}
}

func (e *Executor) deleteConversations() []model.Msg {
	const op = "delete_conversations"
	if err := e.db.ClearConversations(); err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	return []model.Msg{model.ConversationsCleared{}}
}

func (e *Executor) connectRelay(ctx context.Context, reconnect bool) []model.Msg {
	op, connect := "connect_relay", e.relay.Connect
	if reconnect {
		op, connect = "rescan_relays", e.relay.Reconnect
	}
	err := connect(ctx)
	out := []model.Msg{model.RelayStatusChanged{Status: e.relay.Status()}}
	if err != nil {
		return append(out, e.fail(op, errs.TransportErr(op, err), zap.String("relay", e.relay.URL()))...)
	}
	if e.relay.Status() == status.Connected {
		out = append(out, e.debug(model.LevelInfo, "connected to "+e.relay.URL()))
	}
	return out
}
