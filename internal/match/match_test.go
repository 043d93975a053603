package match

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fwiko/multiplayer-quiz/internal/protocol"
	"github.com/fwiko/multiplayer-quiz/internal/quiz"
)

type event struct {
	header string
	data   any
}

// fakeMember records notifications on a channel so tests can assert on
// delivery order without touching actor internals.
type fakeMember struct {
	uid  int
	name string

	mu      sync.Mutex
	state   protocol.State
	cleared bool

	events chan event
}

func newFakeMember(uid int, name string) *fakeMember {
	return &fakeMember{
		uid:    uid,
		name:   name,
		state:  protocol.StateLobby,
		events: make(chan event, 64),
	}
}

func (f *fakeMember) UID() int         { return f.uid }
func (f *fakeMember) Username() string { return f.name }

func (f *fakeMember) Send(header string, data any) {
	select {
	case f.events <- event{header, data}:
	default:
	}
}

func (f *fakeMember) SetState(s protocol.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.Send(protocol.HeaderState, protocol.StateData{State: s})
}

func (f *fakeMember) ClearMatch() {
	f.mu.Lock()
	f.cleared = true
	f.mu.Unlock()
}

func (f *fakeMember) State() protocol.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeMember) Cleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// recvHeader waits for the next event with the given header, skipping
// events with other headers, so interleaved alerts and state changes
// never break an assertion.
func recvHeader(t *testing.T, f *fakeMember, header string, within time.Duration) event {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev := <-f.events:
			if ev.header == header {
				return ev
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for %q event", f.name, header)
			return event{}
		}
	}
}

// recvNoHeader asserts no event with the given header arrives within the
// window.
func recvNoHeader(t *testing.T, f *fakeMember, header string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev := <-f.events:
			if ev.header == header {
				t.Fatalf("%s: expected no %q event, got %+v", f.name, header, ev)
			}
		case <-deadline:
			return
		}
	}
}

func alertText(t *testing.T, ev event) string {
	t.Helper()
	data, ok := ev.data.(protocol.AlertData)
	if !ok {
		t.Fatalf("expected AlertData, got %T", ev.data)
	}
	return data.Message
}

func q(text, answer string) quiz.Question {
	return quiz.Question{Text: text, Answers: []string{answer}}
}

func stubDraw(qs ...quiz.Question) DrawFunc {
	return func() (string, []quiz.Question, error) {
		return "testing", qs, nil
	}
}

func newTestMatch(t *testing.T, owner Member, cfg Config, draw DrawFunc) (*Match, chan string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	closed := make(chan string, 1)
	m := New(ctx, "AB12C", owner, cfg, draw, func(m *Match) { closed <- m.Code() }, zap.NewNop())
	return m, closed
}

func waitClosed(t *testing.T, m *Match) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if _, ok := m.Snapshot(); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("match never closed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func join(t *testing.T, m *Match, f *fakeMember) {
	t.Helper()
	reply := make(chan error, 1)
	if !m.Deliver(Join{Member: f, Reply: reply}) {
		t.Fatalf("join delivery failed")
	}
	if err := <-reply; err != nil {
		t.Fatalf("join rejected: %v", err)
	}
}

var fastCfg = Config{StartDelay: 20 * time.Millisecond}

func TestMatch_JoinAlertsOthersOnly(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	joiner := newFakeMember(2, "bob")
	join(t, m, joiner)

	msg := alertText(t, recvHeader(t, owner, protocol.HeaderAlert, time.Second))
	if !strings.Contains(msg, "bob") || !strings.Contains(msg, "joined") {
		t.Fatalf("owner join alert: got %q", msg)
	}
	recvNoHeader(t, joiner, protocol.HeaderAlert, 100*time.Millisecond)
}

func TestMatch_JoinIsIdempotent(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	joiner := newFakeMember(2, "bob")
	join(t, m, joiner)
	join(t, m, joiner)

	view, ok := m.Snapshot()
	if !ok {
		t.Fatalf("match unexpectedly closed")
	}
	if len(view.Members) != 2 {
		t.Fatalf("want roster of 2, got %+v", view.Members)
	}
}

func TestMatch_JoinRejectedWhileActive(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	m.Deliver(Start{UID: 1})

	reply := make(chan error, 1)
	m.Deliver(Join{Member: newFakeMember(2, "bob"), Reply: reply})
	if err := <-reply; err != ErrMatchActive {
		t.Fatalf("want ErrMatchActive, got %v", err)
	}
}

func TestMatch_StartByNonOwnerIgnored(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	joiner := newFakeMember(2, "bob")
	join(t, m, joiner)

	m.Deliver(Start{UID: 2})
	recvNoHeader(t, joiner, protocol.HeaderQuestion, 150*time.Millisecond)

	view, _ := m.Snapshot()
	if view.Active {
		t.Fatalf("non-owner start must not activate the match")
	}
}

func TestMatch_NonOwnerLeaveAlertsRemaining(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	joiner := newFakeMember(2, "bob")
	join(t, m, joiner)
	recvHeader(t, owner, protocol.HeaderAlert, time.Second) // join alert

	m.Deliver(Leave{Member: joiner})

	msg := alertText(t, recvHeader(t, owner, protocol.HeaderAlert, time.Second))
	if !strings.Contains(msg, "bob") || !strings.Contains(msg, "left") {
		t.Fatalf("departure alert: got %q", msg)
	}
	view, ok := m.Snapshot()
	if !ok || len(view.Members) != 1 {
		t.Fatalf("match should stay open with the owner: ok=%v view=%+v", ok, view)
	}
}

func TestMatch_OwnerLeaveClosesMatch(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, closed := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	j2 := newFakeMember(2, "bob")
	j3 := newFakeMember(3, "carol")
	join(t, m, j2)
	join(t, m, j3)

	m.Deliver(Leave{Member: owner})

	select {
	case code := <-closed:
		if code != "AB12C" {
			t.Fatalf("close callback got code %q", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("close callback never fired")
	}

	for _, member := range []*fakeMember{j2, j3} {
		msg := alertText(t, recvHeader(t, member, protocol.HeaderAlert, time.Second))
		for !strings.Contains(msg, "closed") {
			msg = alertText(t, recvHeader(t, member, protocol.HeaderAlert, time.Second))
		}
		if member.State() != protocol.StateMenu {
			t.Fatalf("%s: want menu state after close, got %v", member.name, member.State())
		}
		if !member.Cleared() {
			t.Fatalf("%s: match reference not cleared", member.name)
		}
	}
	waitClosed(t, m)
}

func TestMatch_QuizAdvancesOnlyWhenAllSubmitted(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x"), q("q2", "y")))

	j2 := newFakeMember(2, "bob")
	j3 := newFakeMember(3, "carol")
	join(t, m, j2)
	join(t, m, j3)

	m.Deliver(Start{UID: 1})
	members := []*fakeMember{owner, j2, j3}
	for _, member := range members {
		recvHeader(t, member, protocol.HeaderQuestion, time.Second)
		if member.State() != protocol.StateInGame {
			t.Fatalf("%s: want in-game state, got %v", member.name, member.State())
		}
	}

	// Two of three submit; a duplicate from one of them changes nothing.
	m.Deliver(Answer{UID: 1, Text: "wrong"})
	m.Deliver(Answer{UID: 2, Text: "x"})
	m.Deliver(Answer{UID: 2, Text: "x"})
	recvNoHeader(t, owner, protocol.HeaderQuestion, 150*time.Millisecond)

	view, _ := m.Snapshot()
	if view.Scores[2] != 1 {
		t.Fatalf("duplicate submission changed score: %+v", view.Scores)
	}

	// Third participant submits; question 2 goes out to everyone.
	m.Deliver(Answer{UID: 3, Text: "x"})
	for _, member := range members {
		ev := recvHeader(t, member, protocol.HeaderQuestion, time.Second)
		data := ev.data.(protocol.QuestionData)
		if !strings.Contains(data.Question, "q2") {
			t.Fatalf("%s: want question 2, got %q", member.name, data.Question)
		}
	}

	// Finish: bob answers both correctly, carol one, alice none.
	m.Deliver(Answer{UID: 1, Text: "wrong"})
	m.Deliver(Answer{UID: 2, Text: "y"})
	m.Deliver(Answer{UID: 3, Text: "wrong"})

	for _, member := range members {
		ev := recvHeader(t, member, protocol.HeaderQuizStats, time.Second)
		stats := ev.data.(protocol.QuizStatsData)
		if len(stats) != 3 {
			t.Fatalf("%s: want 3 leaderboard rows, got %+v", member.name, stats)
		}
		if stats[0].Username != "bob" || stats[0].Score != 2 {
			t.Fatalf("leaderboard head: %+v", stats)
		}
		if stats[1].Username != "carol" || stats[1].Score != 1 {
			t.Fatalf("leaderboard middle: %+v", stats)
		}
		if stats[2].Username != "alice" || stats[2].Score != 0 {
			t.Fatalf("leaderboard tail: %+v", stats)
		}
	}

	for _, member := range members {
		if member.State() != protocol.StateLobby {
			t.Fatalf("%s: want lobby state after quiz, got %v", member.name, member.State())
		}
	}
	view, ok := m.Snapshot()
	if !ok || view.Active {
		t.Fatalf("match should be idle after the quiz: ok=%v view=%+v", ok, view)
	}
}

func TestMatch_LeaveMidQuestionUnblocksRound(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	j2 := newFakeMember(2, "bob")
	join(t, m, j2)

	m.Deliver(Start{UID: 1})
	recvHeader(t, owner, protocol.HeaderQuestion, time.Second)

	m.Deliver(Answer{UID: 1, Text: "x"})
	recvNoHeader(t, owner, protocol.HeaderQuizStats, 100*time.Millisecond)

	// The silent participant disconnects; the round must advance.
	m.Deliver(Leave{Member: j2})
	ev := recvHeader(t, owner, protocol.HeaderQuizStats, time.Second)
	stats := ev.data.(protocol.QuizStatsData)
	if stats[0].Username != "alice" || stats[0].Score != 1 {
		t.Fatalf("leaderboard after departure: %+v", stats)
	}
}

func TestMatch_ShutdownMidRoundEmitsNoLeaderboard(t *testing.T) {
	owner := newFakeMember(1, "alice")
	m, closed := newTestMatch(t, owner, fastCfg, stubDraw(q("q1", "x")))

	m.Deliver(Start{UID: 1})
	recvHeader(t, owner, protocol.HeaderQuestion, time.Second)

	m.Deliver(Shutdown{})
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("close callback never fired")
	}
	recvNoHeader(t, owner, protocol.HeaderQuizStats, 150*time.Millisecond)
	if owner.State() != protocol.StateMenu {
		t.Fatalf("want menu state after forced close, got %v", owner.State())
	}
}

func TestMatch_QuestionDeadlineAdvancesPastStalledParticipant(t *testing.T) {
	cfg := Config{StartDelay: 10 * time.Millisecond, QuestionTimeout: 60 * time.Millisecond}
	owner := newFakeMember(1, "alice")
	m, _ := newTestMatch(t, owner, cfg, stubDraw(q("q1", "x")))

	j2 := newFakeMember(2, "bob")
	join(t, m, j2)

	m.Deliver(Start{UID: 1})
	recvHeader(t, owner, protocol.HeaderQuestion, time.Second)

	m.Deliver(Answer{UID: 1, Text: "x"})

	// bob never answers; the deadline finishes the single-question quiz.
	ev := recvHeader(t, owner, protocol.HeaderQuizStats, time.Second)
	stats := ev.data.(protocol.QuizStatsData)
	if stats[0].Username != "alice" || stats[0].Score != 1 {
		t.Fatalf("leaderboard head: %+v", stats)
	}
	if stats[1].Username != "bob" || stats[1].Score != 0 {
		t.Fatalf("stalled participant row: %+v", stats)
	}
}

func TestMatch_SnapshotReflectsRoster(t *testing.T) {
	owner := newFakeMember(7, "alice")
	ctx := context.Background()
	m := New(ctx, "ZZZ99", owner, fastCfg, stubDraw(q("q1", "x")), nil, zap.NewNop())
	t.Cleanup(func() { m.Deliver(Shutdown{}) })

	view, ok := m.Snapshot()
	if !ok {
		t.Fatalf("snapshot failed")
	}
	if view.Code != "ZZZ99" || view.OwnerUID != 7 || view.Active {
		t.Fatalf("unexpected view: %+v", view)
	}
	if len(view.Members) != 1 || view.Members[0].Username != "alice" {
		t.Fatalf("unexpected roster: %+v", view.Members)
	}
	if view.QuestionIndex != -1 {
		t.Fatalf("idle match should report question index -1, got %d", view.QuestionIndex)
	}
}
