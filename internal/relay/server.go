package relay

import (
	"cmp"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/event"
)

// Server is an in-memory relay. It stores every valid event it receives,
// answers REQ with the stored matches followed by EOSE, and pushes later
// matches to open subscriptions until CLOSE.
type Server struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	events []*event.Event
	byID   map[event.ID]struct{}
	peers  map[*peer]struct{}
}

type peer struct {
	conn *websocket.Conn
	wmu  sync.Mutex

	mu   sync.Mutex
	subs map[string][]event.Filter
}

// NewServer creates an empty relay.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		log: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		byID:  map[event.ID]struct{}{},
		peers: map[*peer]struct{}{},
	}
}

// Len returns the number of stored events.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Query returns the stored events matching any of filters, oldest first.
// A filter limit keeps only its newest matches.
func (s *Server) Query(filters ...event.Filter) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(filters) == 0 {
		filters = []event.Filter{{}}
	}
	seen := map[event.ID]struct{}{}
	var out []*event.Event
	for _, f := range filters {
		var matched []*event.Event
		for _, ev := range s.events {
			if f.Matches(ev) {
				matched = append(matched, ev)
			}
		}
		if f.Limit > 0 && len(matched) > f.Limit {
			matched = matched[len(matched)-f.Limit:]
		}
		for _, ev := range matched {
			if _, ok := seen[ev.ID]; !ok {
				seen[ev.ID] = struct{}{}
				out = append(out, ev)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *event.Event) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) })
	return out
}

// Publish stores ev and fans it out. It reports false with a reason when
// the event is rejected, and true for duplicates.
func (s *Server) Publish(ev *event.Event) (bool, string) {
	if ev == nil {
		return false, "invalid: missing event"
	}
	if err := ev.Verify(); err != nil {
		return false, "invalid: " + err.Error()
	}

	s.mu.Lock()
	if _, dup := s.byID[ev.ID]; dup {
		s.mu.Unlock()
		return true, "duplicate: already have this event"
	}
	s.byID[ev.ID] = struct{}{}
	i, _ := slices.BinarySearchFunc(s.events, ev.CreatedAt, func(e *event.Event, t int64) int {
		if e.CreatedAt <= t {
			return -1
		}
		return 1
	})
	s.events = slices.Insert(s.events, i, ev)
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.push(s.log, ev)
	}
	return true, ""
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	p := &peer{conn: conn, subs: map[string][]event.Filter{}}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("peer read ended", zap.Error(err))
			}
			return
		}
		f, err := decode(data)
		if err != nil {
			p.send(s.log, labelNotice, "error: "+err.Error())
			continue
		}
		switch f.Label {
		case labelEvent:
			ok, reason := s.Publish(f.Event)
			id := event.ID("")
			if f.Event != nil {
				id = f.Event.ID
			}
			p.send(s.log, labelOK, id, ok, reason)
		case labelReq:
			p.mu.Lock()
			p.subs[f.SubID] = f.Filters
			p.mu.Unlock()
			for _, ev := range s.Query(f.Filters...) {
				p.send(s.log, labelEvent, f.SubID, ev)
			}
			p.send(s.log, labelEOSE, f.SubID)
		case labelClose:
			p.mu.Lock()
			delete(p.subs, f.SubID)
			p.mu.Unlock()
		default:
			p.send(s.log, labelNotice, "error: unexpected "+f.Label)
		}
	}
}

func (p *peer) push(log *zap.Logger, ev *event.Event) {
	p.mu.Lock()
	var subs []string
	for id, filters := range p.subs {
		if slices.ContainsFunc(filters, func(f event.Filter) bool { return f.Matches(ev) }) {
			subs = append(subs, id)
		}
	}
	p.mu.Unlock()
	for _, id := range subs {
		p.send(log, labelEvent, id, ev)
	}
}

func (p *peer) send(log *zap.Logger, parts ...any) {
	msg, err := encode(parts...)
	if err != nil {
		log.Warn("encode frame failed", zap.Error(err))
		return
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Debug("write to peer failed", zap.Error(err))
	}
}
