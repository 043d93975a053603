// Package session implements the server-side representative of one
// connected player: identity, display name, participation state, and the
// dispatch of decoded wire envelopes into registry and match operations.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fwiko/multiplayer-quiz/internal/match"
	"github.com/fwiko/multiplayer-quiz/internal/protocol"
	"github.com/fwiko/multiplayer-quiz/internal/quiz"
	"github.com/fwiko/multiplayer-quiz/internal/registry"
)

var ErrInvalidUsername = errors.New("username must be between 3 and 16 characters")

// Sender pushes a notification to the remote peer. Implementations must
// be non-blocking; delivery is fire-and-forget.
type Sender interface {
	Send(header string, data any)
}

// Session owns one client connection's server-side state. The name,
// state and match fields are mutated from both the session's receive
// loop and its match's actor goroutine, so they sit behind a mutex.
type Session struct {
	uid int
	reg *registry.Registry
	out Sender
	log *zap.Logger

	mu      sync.Mutex
	name    string
	state   protocol.State
	current *match.Match
}

// New registers a session with the registry, which assigns its identity,
// and announces that identity to the peer.
func New(reg *registry.Registry, out Sender, log *zap.Logger) *Session {
	s := &Session{
		reg:   reg,
		out:   out,
		state: protocol.StateMenu,
	}
	s.uid = reg.Register(s)
	s.name = fmt.Sprintf("Client-%d", s.uid)
	s.log = log.Named(fmt.Sprintf("session-%d", s.uid))
	s.Send(protocol.HeaderClientInfo, protocol.ClientInfoData{UID: s.uid})
	return s
}

// UID returns the immutable session identity.
func (s *Session) UID() int { return s.uid }

// Username returns the current display name.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// State returns the current participation state.
func (s *Session) State() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentMatch returns the match this session belongs to, or nil.
func (s *Session) CurrentMatch() *match.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Send forwards a notification to the peer.
func (s *Session) Send(header string, data any) {
	s.out.Send(header, data)
}

// SetState moves the session to one of the three participation states
// and notifies the peer. Values outside the enumeration are logged and
// ignored.
func (s *Session) SetState(state protocol.State) {
	if !state.Valid() {
		s.log.Error("rejected invalid state", zap.String("state", string(state)))
		return
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.Send(protocol.HeaderState, protocol.StateData{State: state})
	s.log.Info("state changed", zap.String("state", string(state)))
}

// SetUsername validates and applies a new display name. Length is
// counted in runes, 3 to 16 inclusive.
func (s *Session) SetUsername(name string) error {
	if n := utf8.RuneCountInString(name); n < 3 || n > 16 {
		s.log.Warn("rejected invalid username", zap.String("username", name))
		return ErrInvalidUsername
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.log.Info("username set", zap.String("username", name))
	return nil
}

// ClearMatch drops the match reference. Called by the match actor when
// the match closes, and by the session itself on leave.
func (s *Session) ClearMatch() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Session) setMatch(m *match.Match) {
	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
	s.Send(protocol.HeaderGameCode, protocol.GameCodeData{GameCode: m.Code()})
}

// HandleEnvelope dispatches one decoded wire envelope. Unknown headers
// and undecodable payloads are dropped; the receive loop continues.
func (s *Session) HandleEnvelope(env protocol.Envelope) {
	switch env.Header {
	case protocol.HeaderCommand:
		var d protocol.CommandData
		if err := env.Decode(&d); err != nil {
			s.log.Warn("undecodable command payload", zap.Error(err))
			return
		}
		s.HandleCommand(d.Command)
	case protocol.HeaderAnswer:
		var d protocol.AnswerData
		if err := env.Decode(&d); err != nil {
			s.log.Warn("undecodable answer payload", zap.Error(err))
			return
		}
		s.HandleAnswer(d.Answer)
	default:
		s.log.Debug("dropped envelope", zap.String("header", env.Header))
	}
}

// HandleCommand normalizes and executes one command line. Unknown
// commands are logged and produce no reply; commands missing a required
// argument do nothing.
func (s *Session) HandleCommand(raw string) {
	cmd := parseCommand(raw)
	s.log.Debug("handling command", zap.String("command", raw))
	switch cmd.kind {
	case cmdHost:
		s.host()
	case cmdJoin:
		if len(cmd.args) < 1 {
			return
		}
		s.join(cmd.args[0])
	case cmdLeave:
		s.leave()
	case cmdGames:
		s.games()
	case cmdStart:
		s.start()
	case cmdUsername:
		if len(cmd.args) < 1 {
			return
		}
		s.username(strings.Join(cmd.args, " "))
	default:
		s.log.Warn("unknown command", zap.String("command", raw))
	}
}

// HandleAnswer forwards a quiz submission to the session's match. Outside
// an active game the answer is silently dropped.
func (s *Session) HandleAnswer(raw string) {
	m := s.CurrentMatch()
	if m == nil || s.State() != protocol.StateInGame {
		return
	}
	s.log.Debug("handling answer")
	m.Deliver(match.Answer{UID: s.uid, Text: quiz.Normalize(raw)})
}

func (s *Session) host() {
	if s.CurrentMatch() != nil {
		s.alert("You are already in a game/lobby and cannot currently host another.")
		return
	}
	m := s.reg.CreateMatch(s)
	s.setMatch(m)
	s.SetState(protocol.StateLobby)
	s.alert(fmt.Sprintf("Game created with code %s", m.Code()))
}

func (s *Session) join(code string) {
	if s.CurrentMatch() != nil || s.State() != protocol.StateMenu {
		return
	}
	display := strings.ToUpper(code)
	m := s.reg.MatchByCode(code)
	if m == nil {
		s.rejectJoin(display)
		return
	}
	reply := make(chan error, 1)
	if !m.Deliver(match.Join{Member: s, Reply: reply}) {
		s.rejectJoin(display)
		return
	}
	if err := <-reply; err != nil {
		s.rejectJoin(display)
		return
	}
	s.setMatch(m)
	s.SetState(protocol.StateLobby)
	s.alert(fmt.Sprintf("Joined game with code %s", m.Code()))
}

func (s *Session) rejectJoin(code string) {
	s.alert(fmt.Sprintf("Game code %q not found or game is already active", code))
	s.log.Warn("join rejected", zap.String("code", code))
}

func (s *Session) leave() {
	st := s.State()
	m := s.CurrentMatch()
	if (st != protocol.StateLobby && st != protocol.StateInGame) || m == nil {
		return
	}
	m.Deliver(match.Leave{Member: s})
	s.ClearMatch()
	s.SetState(protocol.StateMenu)
	s.alert(fmt.Sprintf("Left game %s", m.Code()))
}

func (s *Session) games() {
	s.Send(protocol.HeaderGameList, protocol.GameListData{GameList: s.reg.Games()})
}

func (s *Session) start() {
	m := s.CurrentMatch()
	if s.State() != protocol.StateLobby || m == nil || m.OwnerUID() != s.uid {
		return
	}
	m.Deliver(match.Start{UID: s.uid})
}

func (s *Session) username(name string) {
	if st := s.State(); st != protocol.StateMenu && st != protocol.StateLobby {
		return
	}
	if err := s.SetUsername(name); err != nil {
		s.alert("Username must be between 3 and 16 characters")
		return
	}
	s.alert(fmt.Sprintf("Username set to %s", s.Username()))
}

func (s *Session) alert(message string) {
	s.Send(protocol.HeaderAlert, protocol.AlertData{Message: message})
}
