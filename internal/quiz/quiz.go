// Package quiz implements the round engine: one execution of a question
// sequence with a per-participant score table. The engine is a pure state
// machine; the match actor drives it and owns all timing.
package quiz

import (
	"regexp"
	"sort"
	"strings"
)

var spaceRun = regexp.MustCompile(` +`)

// Normalize prepares free text for comparison: trim, collapse internal
// whitespace, lower-case. Applied to both submissions and accepted
// answers so comparison is exact.
func Normalize(s string) string {
	return strings.ToLower(spaceRun.ReplaceAllString(strings.TrimSpace(s), " "))
}

// Participant is a scored member captured at round start.
type Participant struct {
	UID      int
	Username string
}

// Question pairs a prompt with its normalized accepted answers.
type Question struct {
	Text    string
	Answers []string
}

// Row is one leaderboard entry.
type Row struct {
	UID      int
	Username string
	Score    int
}

// Round holds the state of a single quiz execution. Scores are keyed by
// session uid, never by display name, so renames between rounds cannot
// corrupt the table. Methods are not safe for concurrent use; the owning
// match actor serializes access.
type Round struct {
	questions []Question
	order     []int          // round-start encounter order of uids
	names     map[int]string // uid -> display name at round start
	scores    map[int]int
	cursor    int // index into questions; -1 before the first ask
	open      bool
	submitted map[int]bool
}

// NewRound captures the given participants as the scored population, all
// starting at zero. Members joining after this point are not scored.
func NewRound(participants []Participant, qs []Question) *Round {
	r := &Round{
		questions: qs,
		names:     make(map[int]string, len(participants)),
		scores:    make(map[int]int, len(participants)),
		cursor:    -1,
	}
	for _, p := range participants {
		if _, ok := r.scores[p.UID]; ok {
			continue
		}
		r.order = append(r.order, p.UID)
		r.names[p.UID] = p.Username
		r.scores[p.UID] = 0
	}
	return r
}

// NumQuestions returns the length of the fixed question sequence.
func (r *Round) NumQuestions() int { return len(r.questions) }

// Cursor returns the index of the current question, -1 before the first.
func (r *Round) Cursor() int { return r.cursor }

// IsParticipant reports whether uid was present at round start.
func (r *Round) IsParticipant(uid int) bool {
	_, ok := r.scores[uid]
	return ok
}

// Score returns uid's current score.
func (r *Round) Score(uid int) int { return r.scores[uid] }

// Ask advances to the next question and opens it for submissions. It
// returns false once the sequence is exhausted.
func (r *Round) Ask() (Question, bool) {
	if r.cursor+1 >= len(r.questions) {
		r.open = false
		return Question{}, false
	}
	r.cursor++
	r.open = true
	r.submitted = make(map[int]bool)
	return r.questions[r.cursor], true
}

// CloseQuestion stops the current question accepting submissions. Used by
// the deadline path; a normal advance just calls Ask again.
func (r *Round) CloseQuestion() { r.open = false }

// Submit records an answer from uid for the open question. Repeat
// submissions, submissions outside an open question, and submissions from
// non-participants are all no-ops. The first submission scores one point
// iff answer matches an accepted answer; there is no correction.
func (r *Round) Submit(uid int, answer string) bool {
	if !r.open || r.submitted[uid] || !r.IsParticipant(uid) {
		return false
	}
	r.submitted[uid] = true
	for _, accepted := range r.questions[r.cursor].Answers {
		if answer == accepted {
			r.scores[uid]++
			break
		}
	}
	return true
}

// Submitted reports whether uid has answered the current question.
func (r *Round) Submitted(uid int) bool {
	return r.submitted[uid]
}

// Open reports whether a question is currently accepting submissions.
func (r *Round) Open() bool { return r.open }

// Leaderboard returns the score table sorted by descending score. Ties
// keep round-start encounter order (stable sort).
func (r *Round) Leaderboard() []Row {
	rows := make([]Row, 0, len(r.order))
	for _, uid := range r.order {
		rows = append(rows, Row{UID: uid, Username: r.names[uid], Score: r.scores[uid]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Score > rows[j].Score
	})
	return rows
}
