// Package registry holds the process-wide directory of live sessions and
// matches. It is the only place sessions and matches are created or
// removed; its collections are guarded by a single mutex and never
// mutated from outside.
package registry

import (
	"context"
	"crypto/rand"
	"math/big"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fwiko/multiplayer-quiz/internal/match"
	"github.com/fwiko/multiplayer-quiz/internal/protocol"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the fixed join-code length.
const CodeLength = 5

// Client is the registry's view of a session.
type Client interface {
	match.Member
	CurrentMatch() *match.Match
}

// Registry is the global directory. Sessions receive monotonically
// increasing uids at registration; uids are never reused.
type Registry struct {
	ctx  context.Context
	cfg  match.Config
	draw match.DrawFunc
	log  *zap.Logger

	mu       sync.Mutex
	nextUID  int
	sessions map[int]Client
	matches  map[string]*match.Match
}

// New constructs an empty registry. Matches it creates inherit ctx, cfg
// and draw.
func New(ctx context.Context, cfg match.Config, draw match.DrawFunc, log *zap.Logger) *Registry {
	return &Registry{
		ctx:      ctx,
		cfg:      cfg,
		draw:     draw,
		log:      log,
		nextUID:  1,
		sessions: make(map[int]Client),
		matches:  make(map[string]*match.Match),
	}
}

// Register stores a session and assigns its identity.
func (r *Registry) Register(c Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid := r.nextUID
	r.nextUID++
	r.sessions[uid] = c
	r.log.Info("session registered", zap.Int("uid", uid))
	return uid
}

// Unregister drops a session from the directory.
func (r *Registry) Unregister(uid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[uid]; ok {
		delete(r.sessions, uid)
		r.log.Info("session unregistered", zap.Int("uid", uid))
	}
}

// SessionByID looks a session up by identity. Diagnostic use only; the
// quiz protocol itself never needs it.
func (r *Registry) SessionByID(uid int) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[uid]
	return c, ok
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CreateMatch builds a new match owned by owner under a join code that is
// unique among live matches, regenerating on collision.
func (r *Registry) CreateMatch(owner Client) *match.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	var code string
	for {
		code = generateCode(CodeLength)
		if _, taken := r.matches[code]; !taken {
			break
		}
		r.log.Warn("join code collision, regenerating", zap.String("code", code))
	}
	m := match.New(r.ctx, code, owner, r.cfg, r.draw, r.removeMatch, r.log.Named("match-"+code))
	r.matches[code] = m
	return m
}

// MatchByCode resolves a join code case-insensitively.
func (r *Registry) MatchByCode(code string) *match.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matches[strings.ToUpper(strings.TrimSpace(code))]
}

// removeMatch is handed to every match as its close callback.
func (r *Registry) removeMatch(m *match.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.matches[m.Code()] == m {
		delete(r.matches, m.Code())
		r.log.Info("match removed", zap.String("code", m.Code()))
	}
}

// Games lists all non-active matches as join summaries, sorted by code.
func (r *Registry) Games() []protocol.GameSummary {
	r.mu.Lock()
	live := make([]*match.Match, 0, len(r.matches))
	for _, m := range r.matches {
		live = append(live, m)
	}
	r.mu.Unlock()

	summaries := make([]protocol.GameSummary, 0, len(live))
	for _, m := range live {
		view, ok := m.Snapshot()
		if !ok || view.Active {
			continue
		}
		summaries = append(summaries, protocol.GameSummary{
			Code:        view.Code,
			PlayerCount: len(view.Members),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Code < summaries[j].Code
	})
	return summaries
}

// OnSessionDisconnected is called by a session's receive loop when its
// connection terminates: the session is unregistered and its match, if
// any, handles the departure (including an owner-triggered close).
func (r *Registry) OnSessionDisconnected(c Client) {
	r.Unregister(c.UID())
	if m := c.CurrentMatch(); m != nil {
		m.Deliver(match.Leave{Member: c})
	}
}

func generateCode(length int) string {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			// crypto/rand only fails when the platform source is
			// broken; fall back to the first symbol rather than
			// aborting match creation.
			n = big.NewInt(0)
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code)
}
