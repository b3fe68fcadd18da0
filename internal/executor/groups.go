package executor

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/giftwrap"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/model"
)

func (e *Executor) createGroup(ctx context.Context, contactID model.ContactID) []model.Msg {
	const op = "create_group"
	contact, err := e.db.GetContact(contactID)
	if err != nil {
		return e.fail(op, errs.StorageErr(op, err))
	}
	if contact == nil {
		return e.fail(op, errs.InvalidInputErr(op, "unknown contact "+string(contactID)))
	}
	peer := zap.String("contact", contact.PublicKey.Short())

	kp, err := e.latestKeyPackage(ctx, contact.PublicKey)
	if err != nil {
		return e.fail(op, err, peer)
	}
	if err := e.ch.ParseKeyPackage(ctx, kp); err != nil {
		return e.fail(op, errs.ProtocolErr(op, err), peer)
	}

	res, err := e.ch.CreateGroup(ctx, []*event.Event{kp}, []identity.PublicKey{e.id.PublicKey()}, mls.GroupConfig{
		Name:        contact.DisplayName,
		Description: "Conversation with " + contact.DisplayName,
		Relays:      []string{e.relay.URL()},
	})
	if err != nil {
		return e.fail(op, errs.ProtocolErr(op, err), peer)
	}
	if len(res.Welcomes) != 1 {
		return e.fail(op, errs.InconsistencyErr(op,
			fmt.Sprintf("group channel produced %d welcomes for 1 invitee", len(res.Welcomes))), peer)
	}

	for _, w := range res.Welcomes {
		if err := e.deliverWelcome(ctx, w); err != nil {
			// The group exists in the channel but the invitee never heard of it.
			e.logger.Error("welcome not delivered; group channel and storage now disagree",
				peer, zap.String("group", res.Group.Tag), zap.Error(err))
			return e.fail(op, errs.Wrapf(errs.Inconsistency, op, err, "group created but welcome not delivered"), peer)
		}
	}

	conv := model.Conversation{
		ID:           res.Group.Handle.ConversationID(),
		GroupHandle:  res.Group.Handle,
		Name:         contact.DisplayName,
		Participants: res.Group.Members,
	}
	if err := e.db.SaveConversation(conv); err != nil {
		return e.fail(op, errs.StorageErr(op, err), peer)
	}
	e.bus.Emit(bus.KindGroupCreated, conv)
	return []model.Msg{
		model.ConversationCreated{Conversation: conv},
		e.debug(model.LevelInfo, "created group with "+contact.DisplayName, peer, zap.String("conversation", string(conv.ID))),
	}
}

// latestKeyPackage returns the newest key package authored by pk.
func (e *Executor) latestKeyPackage(ctx context.Context, pk identity.PublicKey) (*event.Event, error) {
	const op = "fetch_key_package"
	events, err := e.relay.Fetch(ctx, event.Filter{
		Kinds:   []event.Kind{event.KindKeyPackage},
		Authors: []identity.PublicKey{pk},
	}, e.fetchTimeout)
	if err != nil {
		return nil, errs.TransportErr(op, err)
	}
	if len(events) == 0 {
		return nil, errs.New(errs.Protocol, op, "no key package published by "+pk.Short())
	}
	return slices.MaxFunc(events, func(a, b *event.Event) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) }), nil
}

func (e *Executor) deliverWelcome(ctx context.Context, welcome *event.Event) error {
	recipient, err := identity.ParsePublicKey(welcome.TagValue("p"))
	if err != nil {
		return fmt.Errorf("welcome recipient: %w", err)
	}
	wrap, err := giftwrap.Wrap(e.id, recipient, welcome, e.now())
	if err != nil {
		return fmt.Errorf("wrap welcome: %w", err)
	}
	return e.relay.Send(ctx, wrap)
}

func (e *Executor) publishKeyPackage(ctx context.Context) []model.Msg {
	const op = "publish_key_package"
	kp, err := e.ch.CreateKeyPackage(ctx, []string{e.relay.URL()})
	if err != nil {
		return e.fail(op, errs.ProtocolErr(op, err))
	}
	if err := e.relay.Send(ctx, kp); err != nil {
		return e.fail(op, errs.TransportErr(op, err))
	}
	return []model.Msg{
		e.notify(model.LevelInfo, "Key package published"),
		e.debug(model.LevelInfo, "published key package", zap.String("event_id", string(kp.ID))),
	}
}
