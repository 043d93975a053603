// Package match implements a joinable quiz match as a single-threaded
// actor. One goroutine per match drains a typed message inbox; the roster
// and the running round are only ever touched from that goroutine, so
// join/leave/broadcast operations observe a single total order per match.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fwiko/multiplayer-quiz/internal/protocol"
	"github.com/fwiko/multiplayer-quiz/internal/quiz"
)

var ErrMatchActive = errors.New("match is active")

// Member is the match's view of a session. Implementations must be safe
// to call from the match goroutine while the session's own goroutine is
// running; sends are fire-and-forget.
type Member interface {
	UID() int
	Username() string
	Send(header string, data any)
	SetState(state protocol.State)
	ClearMatch()
}

// DrawFunc supplies the question sequence for a round: a topic and its
// question/answer pairs, drawn once at round start.
type DrawFunc func() (topic string, qs []quiz.Question, err error)

// Config carries the round timing knobs.
type Config struct {
	// StartDelay is the pause between "start" and the first question.
	StartDelay time.Duration
	// QuestionTimeout bounds how long one question stays open; zero
	// means a question waits for every participant indefinitely.
	QuestionTimeout time.Duration
}

type Msg interface{ isMatchMsg() }

// Join asks to append a member to the roster. Reply receives nil on
// success (including the idempotent already-present case) or
// ErrMatchActive while a round is running.
type Join struct {
	Member Member
	Reply  chan error
}

// Leave removes a member from the roster. The owner leaving closes the
// whole match.
type Leave struct {
	Member Member
}

// Start begins a round. Ignored unless UID is the owner and no round is
// running.
type Start struct {
	UID int
}

// Answer is a normalized submission for the open question.
type Answer struct {
	UID  int
	Text string
}

// Summary requests a point-in-time view of the match.
type Summary struct {
	Reply chan View
}

// Shutdown force-closes the match.
type Shutdown struct{}

type timerKind int

const (
	timerAsk timerKind = iota
	timerDeadline
)

type timerFired struct {
	gen  int
	kind timerKind
}

func (Join) isMatchMsg()       {}
func (Leave) isMatchMsg()      {}
func (Start) isMatchMsg()      {}
func (Answer) isMatchMsg()     {}
func (Summary) isMatchMsg()    {}
func (Shutdown) isMatchMsg()   {}
func (timerFired) isMatchMsg() {}

// ViewMember is one roster entry in a View.
type ViewMember struct {
	UID      int
	Username string
}

// View is a consistent snapshot of match state, produced by the actor.
type View struct {
	Code     string
	OwnerUID int
	Active   bool
	Members  []ViewMember
	// QuestionIndex is the current question's index, -1 when no round
	// is running or the first question has not been asked yet.
	QuestionIndex int
	Scores        map[int]int
}

// Match owns a join code, an owner, an ordered roster and, while active,
// a round. All fields below inbox are actor-private.
type Match struct {
	code   string
	owner  int
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc

	cfg     Config
	draw    DrawFunc
	onClose func(*Match)
	log     *zap.Logger

	roster   []Member
	active   bool
	round    *quiz.Round
	topic    string
	timerGen int
}

// New creates a match owned by owner, seeds the roster with it, and
// starts the actor goroutine. onClose is invoked from the actor exactly
// once when the match closes.
func New(parent context.Context, code string, owner Member, cfg Config, draw DrawFunc, onClose func(*Match), log *zap.Logger) *Match {
	ctx, cancel := context.WithCancel(parent)
	m := &Match{
		code:    code,
		owner:   owner.UID(),
		inbox:   make(chan Msg, 64),
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		draw:    draw,
		onClose: onClose,
		log:     log,
		roster:  []Member{owner},
	}
	go m.loop()
	m.log.Info("match created", zap.String("code", code), zap.Int("owner", m.owner))
	return m
}

// Code returns the immutable join code.
func (m *Match) Code() string { return m.code }

// OwnerUID returns the immutable owner identity.
func (m *Match) OwnerUID() int { return m.owner }

// Deliver sends a message to the actor, blocking until it is accepted.
// It returns false if the match has already closed.
func (m *Match) Deliver(msg Msg) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// Snapshot asks the actor for a view. ok is false once the match closed.
func (m *Match) Snapshot() (View, bool) {
	reply := make(chan View, 1)
	if !m.Deliver(Summary{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-m.ctx.Done():
		return View{}, false
	}
}

func (m *Match) loop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case raw := <-m.inbox:
			switch msg := raw.(type) {
			case Join:
				m.handleJoin(msg)
			case Leave:
				if m.handleLeave(msg.Member) {
					return
				}
			case Start:
				m.handleStart(msg.UID)
			case Answer:
				m.handleAnswer(msg.UID, msg.Text)
			case timerFired:
				m.handleTimer(msg)
			case Summary:
				msg.Reply <- m.view()
			case Shutdown:
				m.close()
				return
			}
		}
	}
}

func (m *Match) handleJoin(msg Join) {
	if m.active {
		msg.Reply <- ErrMatchActive
		return
	}
	if m.indexOf(msg.Member.UID()) >= 0 {
		msg.Reply <- nil
		return
	}
	m.roster = append(m.roster, msg.Member)
	m.alert(fmt.Sprintf("%s has joined the game!", msg.Member.Username()), msg.Member.UID())
	m.log.Info("member joined", zap.Int("uid", msg.Member.UID()), zap.String("username", msg.Member.Username()))
	msg.Reply <- nil
}

// handleLeave reports true when the departure closed the match, which
// ends the actor loop.
func (m *Match) handleLeave(member Member) bool {
	i := m.indexOf(member.UID())
	if i < 0 {
		return false
	}
	m.roster = append(m.roster[:i], m.roster[i+1:]...)
	m.alert(fmt.Sprintf("%s has left the game.", member.Username()))
	m.log.Info("member left", zap.Int("uid", member.UID()), zap.String("username", member.Username()))

	if member.UID() == m.owner || len(m.roster) == 0 {
		m.close()
		return true
	}
	if m.active {
		// A departed participant no longer blocks the question.
		m.checkAdvance()
	}
	return false
}

func (m *Match) handleStart(uid int) {
	if m.active || uid != m.owner {
		m.log.Warn("start rejected", zap.Int("uid", uid), zap.Bool("active", m.active))
		return
	}
	topic, qs, err := m.draw()
	if err != nil || len(qs) == 0 {
		m.log.Error("question draw failed", zap.Error(err))
		if owner := m.memberByUID(uid); owner != nil {
			owner.Send(protocol.HeaderAlert, protocol.AlertData{Message: "No questions are available right now."})
		}
		return
	}

	participants := make([]quiz.Participant, 0, len(m.roster))
	for _, member := range m.roster {
		participants = append(participants, quiz.Participant{UID: member.UID(), Username: member.Username()})
	}
	m.round = quiz.NewRound(participants, qs)
	m.topic = topic
	m.active = true
	m.setStates(protocol.StateInGame)
	m.alert(fmt.Sprintf("Quiz starting in %d seconds!", int(m.cfg.StartDelay/time.Second)))
	m.schedule(timerAsk, m.cfg.StartDelay)
	m.log.Info("quiz started", zap.String("topic", topic), zap.Int("questions", len(qs)))
}

func (m *Match) handleAnswer(uid int, text string) {
	if !m.active || m.round == nil {
		return
	}
	if m.round.Submit(uid, text) {
		m.log.Debug("answer recorded", zap.Int("uid", uid))
		m.checkAdvance()
	}
}

func (m *Match) handleTimer(msg timerFired) {
	if msg.gen != m.timerGen {
		// Stale fire from an invalidated timer.
		return
	}
	switch msg.kind {
	case timerAsk:
		m.askNext()
	case timerDeadline:
		if m.round != nil && m.round.Open() {
			m.log.Info("question deadline reached", zap.Int("question", m.round.Cursor()))
			m.round.CloseQuestion()
			m.askNext()
		}
	}
}

// checkAdvance moves to the next question once every still-present
// round-start participant has submitted. Re-checked after every answer
// and every departure rather than polled.
func (m *Match) checkAdvance() {
	if m.round == nil || !m.round.Open() {
		return
	}
	for _, member := range m.roster {
		if m.round.IsParticipant(member.UID()) && !m.round.Submitted(member.UID()) {
			return
		}
	}
	m.askNext()
}

func (m *Match) askNext() {
	m.invalidateTimers()
	q, ok := m.round.Ask()
	if !ok {
		m.finish()
		return
	}
	m.broadcast(protocol.HeaderQuestion, protocol.QuestionData{
		Question: fmt.Sprintf("Question %d: %s", m.round.Cursor()+1, q.Text),
	})
	if m.cfg.QuestionTimeout > 0 {
		m.schedule(timerDeadline, m.cfg.QuestionTimeout)
	}
}

func (m *Match) finish() {
	rows := m.round.Leaderboard()
	stats := make(protocol.QuizStatsData, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, protocol.ScoreRow{UID: row.UID, Username: row.Username, Score: row.Score})
	}
	m.broadcast(protocol.HeaderQuizStats, stats)

	m.round = nil
	m.topic = ""
	m.active = false
	m.invalidateTimers()
	m.setStates(protocol.StateLobby)
	m.log.Info("quiz finished")
}

// close tears the match down: the round is discarded without a
// leaderboard, the registry entry is removed, and every remaining member
// drops back to the menu.
func (m *Match) close() {
	m.invalidateTimers()
	m.round = nil
	m.active = false
	if m.onClose != nil {
		m.onClose(m)
	}
	for _, member := range m.roster {
		member.ClearMatch()
		member.SetState(protocol.StateMenu)
		member.Send(protocol.HeaderAlert, protocol.AlertData{
			Message: fmt.Sprintf("Game %s has been closed", m.code),
		})
	}
	m.roster = nil
	m.cancel()
	m.log.Info("match closed")
}

// schedule arms a one-shot timer carrying the current generation; any
// later invalidation makes the fire a no-op.
func (m *Match) schedule(kind timerKind, d time.Duration) {
	m.timerGen++
	gen := m.timerGen
	time.AfterFunc(d, func() {
		m.Deliver(timerFired{gen: gen, kind: kind})
	})
}

func (m *Match) invalidateTimers() {
	m.timerGen++
}

func (m *Match) broadcast(header string, data any, exclude ...int) {
	for _, member := range m.roster {
		if contains(exclude, member.UID()) {
			continue
		}
		member.Send(header, data)
	}
}

func (m *Match) alert(message string, exclude ...int) {
	m.broadcast(protocol.HeaderAlert, protocol.AlertData{Message: message}, exclude...)
}

func (m *Match) setStates(state protocol.State) {
	for _, member := range m.roster {
		member.SetState(state)
	}
}

func (m *Match) view() View {
	v := View{
		Code:          m.code,
		OwnerUID:      m.owner,
		Active:        m.active,
		QuestionIndex: -1,
	}
	for _, member := range m.roster {
		v.Members = append(v.Members, ViewMember{UID: member.UID(), Username: member.Username()})
	}
	if m.round != nil {
		v.QuestionIndex = m.round.Cursor()
		v.Scores = make(map[int]int, len(v.Members))
		for _, vm := range v.Members {
			if m.round.IsParticipant(vm.UID) {
				v.Scores[vm.UID] = m.round.Score(vm.UID)
			}
		}
	}
	return v
}

func (m *Match) indexOf(uid int) int {
	for i, member := range m.roster {
		if member.UID() == uid {
			return i
		}
	}
	return -1
}

func (m *Match) memberByUID(uid int) Member {
	if i := m.indexOf(uid); i >= 0 {
		return m.roster[i]
	}
	return nil
}

func contains(uids []int, uid int) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}
