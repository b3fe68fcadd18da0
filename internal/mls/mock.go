package mls

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// Op names a Mock operation for failure injection.
type Op string

const (
	OpCreateGroup     Op = "create_group"
	OpProcessMessage  Op = "process_message"
	OpCreateMessage   Op = "create_message"
	OpProcessWelcome  Op = "process_welcome"
	OpAcceptWelcome   Op = "accept_welcome"
	OpGroups          Op = "get_groups"
	OpPendingWelcomes Op = "get_pending_welcomes"
	OpParseKeyPackage Op = "parse_key_package"
)

const (
	protocolVersion = "1.0"
	ciphersuite     = "0x0001"
	epochInfo       = "dialog/mock/epoch/"
)

// payload types carried inside a sealed group event.
const (
	payloadApplication  = "application"
	payloadCommit       = "commit"
	payloadProposal     = "proposal"
	payloadExternalJoin = "external_join"
)

type payload struct {
	Type  string       `json:"type"`
	Epoch uint64       `json:"epoch"`
	Rumor *event.Event `json:"rumor,omitempty"`
}

// welcomeBody is the content of a welcome rumor. The gift wrap around it
// keeps Secret private.
type welcomeBody struct {
	Handle  model.GroupHandle    `json:"handle"`
	Name    string               `json:"name"`
	Tag     string               `json:"tag"`
	Epoch   uint64               `json:"epoch"`
	Secret  []byte               `json:"secret"`
	Members []identity.PublicKey `json:"members"`
	Admins  []identity.PublicKey `json:"admins"`
	Relays  []string             `json:"relays"`
}

type mockGroup struct {
	Group
	Secret   []byte    `json:"secret"`
	Messages []Message `json:"messages"`
}

type mockWelcome struct {
	Welcome
	Body welcomeBody `json:"body"`
}

type mockState struct {
	Groups  []*mockGroup   `json:"groups"`
	Pending []*mockWelcome `json:"pending"`
}

// MockOptions configures NewMock.
type MockOptions struct {
	// StatePath, when set, persists group state as JSON after every change
	// and loads it on construction.
	StatePath string
	Now       func() time.Time
}

// Mock is an in-process group channel. Group events are sealed with
// XChaCha20-Poly1305 under a key derived from a per-group secret and the
// current epoch, so members that missed a commit cannot read later
// messages. It is safe for concurrent use.
type Mock struct {
	id   *identity.Identity
	opts MockOptions

	mu       sync.Mutex
	state    mockState
	failures map[Op]error
}

var _ Channel = (*Mock)(nil)

// NewMock creates a mock channel for id.
func NewMock(id *identity.Identity, opts MockOptions) (*Mock, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Mock{id: id, opts: opts, failures: map[Op]error{}}
	if opts.StatePath != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Fail makes every later call to op return err until cleared with a nil
// err.
func (m *Mock) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Mock) injected(op Op) error {
	if err := m.failures[op]; err != nil {
		return errs.ProtocolErr(string(op), err)
	}
	return nil
}

func protocolf(op Op, format string, args ...any) error {
	return errs.New(errs.Protocol, string(op), fmt.Sprintf(format, args...))
}

func (m *Mock) CreateGroup(_ context.Context, keyPackages []*event.Event, admins []identity.PublicKey, cfg GroupConfig) (*CreateGroupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCreateGroup); err != nil {
		return nil, err
	}

	self := m.id.PublicKey()
	members := []identity.PublicKey{self}
	for _, kp := range keyPackages {
		if err := parseKeyPackage(kp); err != nil {
			return nil, errs.ProtocolErr(string(OpCreateGroup), err)
		}
		if !slices.Contains(members, kp.PubKey) {
			members = append(members, kp.PubKey)
		}
	}
	if len(admins) == 0 {
		admins = []identity.PublicKey{self}
	}

	handle, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	tag, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	secret, err := randomBytes(32)
	if err != nil {
		return nil, err
	}

	g := &mockGroup{
		Group: Group{
			Handle:  model.GroupHandle(handle),
			Name:    cfg.Name,
			Tag:     hex.EncodeToString(tag),
			Members: members,
			Admins:  slices.Clone(admins),
		},
		Secret: secret,
	}

	body := welcomeBody{
		Handle:  g.Handle,
		Name:    g.Name,
		Tag:     g.Tag,
		Epoch:   g.Epoch,
		Secret:  secret,
		Members: members,
		Admins:  g.Admins,
		Relays:  cfg.Relays,
	}
	content, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode welcome: %w", err)
	}

	now := m.opts.Now()
	welcomes := make([]*event.Event, 0, len(keyPackages))
	for _, kp := range keyPackages {
		w := event.New(event.KindWelcome, now, base64.StdEncoding.EncodeToString(content),
			event.Tag{"e", string(kp.ID)},
			event.Tag{"p", kp.PubKey.String()},
		)
		welcomes = append(welcomes, w.Seal(self))
	}

	m.state.Groups = append(m.state.Groups, g)
	if err := m.save(); err != nil {
		return nil, err
	}
	return &CreateGroupResult{Group: g.public(), Welcomes: welcomes}, nil
}

func (m *Mock) ProcessMessage(_ context.Context, ev *event.Event) (*ProcessResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpProcessMessage); err != nil {
		return nil, err
	}

	if ev.Kind != event.KindGroupMessage {
		return &ProcessResult{Kind: Unprocessable, Reason: "not a group message"}, nil
	}
	g := m.groupByTag(ev.TagValue("h"))
	if g == nil {
		return &ProcessResult{Kind: Unprocessable, Reason: "not for a joined group"}, nil
	}
	if err := ev.Verify(); err != nil {
		return nil, errs.ProtocolErr(string(OpProcessMessage), err)
	}

	p, err := g.open(ev.Content)
	if err != nil {
		return nil, protocolf(OpProcessMessage, "cannot decrypt at epoch %d: %v", g.Epoch, err)
	}
	if p.Epoch != g.Epoch {
		return nil, protocolf(OpProcessMessage, "event for epoch %d, group at %d", p.Epoch, g.Epoch)
	}

	res := &ProcessResult{Handle: g.Handle}
	switch p.Type {
	case payloadApplication:
		msg, err := g.application(ev, p.Rumor)
		if err != nil {
			return nil, errs.ProtocolErr(string(OpProcessMessage), err)
		}
		res.Kind = ApplicationMessage
		res.Message = &msg
	case payloadCommit:
		g.Epoch++
		res.Kind = Commit
	case payloadProposal:
		res.Kind = Proposal
	case payloadExternalJoin:
		res.Kind = ExternalJoinProposal
	default:
		return nil, protocolf(OpProcessMessage, "unknown payload %q", p.Type)
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *mockGroup) application(ev *event.Event, rumor *event.Event) (Message, error) {
	if rumor == nil {
		return Message{}, errors.New("application message without rumor")
	}
	if rumor.ComputeID() != rumor.ID {
		return Message{}, errors.New("rumor id does not match content")
	}
	if !slices.Contains(g.Members, rumor.PubKey) {
		return Message{}, fmt.Errorf("sender %s is not a member", rumor.PubKey.Short())
	}
	msg := Message{
		EventID:   ev.ID,
		Handle:    g.Handle,
		Sender:    rumor.PubKey,
		Content:   rumor.Content,
		CreatedAt: rumor.Time(),
	}
	if !slices.ContainsFunc(g.Messages, func(x Message) bool { return x.EventID == ev.ID }) {
		g.Messages = append(g.Messages, msg)
	}
	return msg, nil
}

func (m *Mock) CreateMessage(_ context.Context, handle model.GroupHandle, rumor *event.Event) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCreateMessage); err != nil {
		return nil, err
	}
	g := m.group(handle)
	if g == nil {
		return nil, protocolf(OpCreateMessage, "unknown group %s", handle)
	}
	if rumor.PubKey != m.id.PublicKey() {
		rumor.Seal(m.id.PublicKey())
	}
	return g.seal(payload{Type: payloadApplication, Epoch: g.Epoch, Rumor: rumor}, rumor.Time())
}

// Commit builds a commit event advancing the group to the next epoch.
// Like any group event it takes effect when processed.
func (m *Mock) Commit(_ context.Context, handle model.GroupHandle) (*event.Event, error) {
	return m.control(handle, payloadCommit)
}

// Propose builds a proposal event for the group.
func (m *Mock) Propose(_ context.Context, handle model.GroupHandle) (*event.Event, error) {
	return m.control(handle, payloadProposal)
}

func (m *Mock) control(handle model.GroupHandle, typ string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.group(handle)
	if g == nil {
		return nil, protocolf(Op(typ), "unknown group %s", handle)
	}
	return g.seal(payload{Type: typ, Epoch: g.Epoch}, m.opts.Now())
}

func (m *Mock) ProcessWelcome(_ context.Context, sourceEventID event.ID, welcome *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpProcessWelcome); err != nil {
		return err
	}
	if welcome.Kind != event.KindWelcome {
		return protocolf(OpProcessWelcome, "expected welcome, got %s", welcome.Kind)
	}
	raw, err := base64.StdEncoding.DecodeString(welcome.Content)
	if err != nil {
		return errs.ProtocolErr(string(OpProcessWelcome), err)
	}
	var body welcomeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return errs.ProtocolErr(string(OpProcessWelcome), err)
	}
	if len(body.Handle) == 0 || len(body.Secret) != chacha20poly1305.KeySize || body.Tag == "" {
		return protocolf(OpProcessWelcome, "incomplete welcome")
	}
	if !slices.Contains(body.Members, m.id.PublicKey()) {
		return protocolf(OpProcessWelcome, "welcome does not include us")
	}
	if slices.ContainsFunc(m.state.Pending, func(w *mockWelcome) bool { return w.SourceEventID == sourceEventID }) {
		return nil
	}
	m.state.Pending = append(m.state.Pending, &mockWelcome{
		Welcome: Welcome{
			SourceEventID: sourceEventID,
			Handle:        body.Handle,
			GroupName:     body.Name,
			MemberCount:   len(body.Members),
			Sender:        welcome.PubKey,
			ReceivedAt:    welcome.Time(),
		},
		Body: body,
	})
	return m.save()
}

func (m *Mock) AcceptWelcome(_ context.Context, w Welcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpAcceptWelcome); err != nil {
		return err
	}
	i := slices.IndexFunc(m.state.Pending, func(p *mockWelcome) bool { return p.SourceEventID == w.SourceEventID })
	if i < 0 {
		return protocolf(OpAcceptWelcome, "no pending welcome from event %s", w.SourceEventID.Short())
	}
	body := m.state.Pending[i].Body
	if m.group(body.Handle) == nil {
		m.state.Groups = append(m.state.Groups, &mockGroup{
			Group: Group{
				Handle:  body.Handle,
				Name:    body.Name,
				Epoch:   body.Epoch,
				Tag:     body.Tag,
				Members: body.Members,
				Admins:  body.Admins,
			},
			Secret: body.Secret,
		})
	}
	m.state.Pending = slices.Delete(m.state.Pending, i, i+1)
	return m.save()
}

func (m *Mock) Groups(context.Context) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpGroups); err != nil {
		return nil, err
	}
	out := make([]Group, 0, len(m.state.Groups))
	for _, g := range m.state.Groups {
		out = append(out, g.public())
	}
	return out, nil
}

func (m *Mock) PendingWelcomes(context.Context) ([]Welcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpPendingWelcomes); err != nil {
		return nil, err
	}
	out := make([]Welcome, 0, len(m.state.Pending))
	for _, w := range m.state.Pending {
		out = append(out, w.Welcome)
	}
	return out, nil
}

func (m *Mock) Messages(_ context.Context, handle model.GroupHandle) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.group(handle)
	if g == nil {
		return nil, protocolf("get_messages", "unknown group %s", handle)
	}
	return slices.Clone(g.Messages), nil
}

func (m *Mock) CreateKeyPackage(_ context.Context, relays []string) (*event.Event, error) {
	ref, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	tags := []event.Tag{
		{"mls_protocol_version", protocolVersion},
		{"ciphersuite", ciphersuite},
	}
	if len(relays) > 0 {
		tags = append(tags, append(event.Tag{"relays"}, relays...))
	}
	ev := event.New(event.KindKeyPackage, m.opts.Now(), hex.EncodeToString(ref), tags...)
	return ev.Sign(m.id), nil
}

func (m *Mock) ParseKeyPackage(_ context.Context, ev *event.Event) error {
	m.mu.Lock()
	err := m.injected(OpParseKeyPackage)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := parseKeyPackage(ev); err != nil {
		return errs.ProtocolErr(string(OpParseKeyPackage), err)
	}
	return nil
}

func parseKeyPackage(ev *event.Event) error {
	if ev == nil {
		return errors.New("missing key package")
	}
	if ev.Kind != event.KindKeyPackage {
		return fmt.Errorf("expected key package, got %s", ev.Kind)
	}
	if err := ev.Verify(); err != nil {
		return fmt.Errorf("key package: %w", err)
	}
	if v := ev.TagValue("mls_protocol_version"); v != protocolVersion {
		return fmt.Errorf("unsupported protocol version %q", v)
	}
	if cs := ev.TagValue("ciphersuite"); cs != ciphersuite {
		return fmt.Errorf("unsupported ciphersuite %q", cs)
	}
	if ref, err := hex.DecodeString(ev.Content); err != nil || len(ref) != 32 {
		return errors.New("malformed key package reference")
	}
	return nil
}

func (m *Mock) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = mockState{}
	return m.save()
}

func (m *Mock) group(handle model.GroupHandle) *mockGroup {
	for _, g := range m.state.Groups {
		if string(g.Handle) == string(handle) {
			return g
		}
	}
	return nil
}

func (m *Mock) groupByTag(tag string) *mockGroup {
	if tag == "" {
		return nil
	}
	for _, g := range m.state.Groups {
		if g.Tag == tag {
			return g
		}
	}
	return nil
}

func (g *mockGroup) public() Group {
	out := g.Group
	out.Members = slices.Clone(g.Members)
	out.Admins = slices.Clone(g.Admins)
	return out
}

func (g *mockGroup) key(epoch uint64) ([]byte, error) {
	r := hkdf.New(sha256.New, g.Secret, g.Handle, []byte(epochInfo+strconv.FormatUint(epoch, 10)))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive epoch key: %w", err)
	}
	return key, nil
}

// seal encrypts p under the current epoch key into a group event signed
// by a throwaway key.
func (g *mockGroup) seal(p payload, at time.Time) (*event.Event, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	key, err := g.key(g.Epoch)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	eph, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	ev := event.New(event.KindGroupMessage, at, base64.StdEncoding.EncodeToString(sealed), event.Tag{"h", g.Tag})
	return ev.Sign(eph), nil
}

func (g *mockGroup) open(content string) (*payload, error) {
	sealed, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, err
	}
	key, err := g.key(g.Epoch)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Mock) load() error {
	data, err := os.ReadFile(m.opts.StatePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read group state: %w", err)
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("decode group state %s: %w", m.opts.StatePath, err)
	}
	return nil
}

// save writes state atomically. Callers hold mu.
func (m *Mock) save() error {
	if m.opts.StatePath == "" {
		return nil
	}
	data, err := json.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("encode group state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.opts.StatePath), 0700); err != nil {
		return err
	}
	tmp := m.opts.StatePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write group state: %w", err)
	}
	return os.Rename(tmp, m.opts.StatePath)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}
