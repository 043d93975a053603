// Package questions loads the question bank used to build quiz rounds.
//
// The bank is a JSON document of the form
//
//	{"_questions": [{"topic": "...", "questions": {"q": "a", ...}}, ...]}
//
// where an answer may be either a single string or a list of accepted
// strings.
package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
)

var ErrEmptyBank = errors.New("question bank contains no topics")

// Question pairs a prompt with its accepted answers.
type Question struct {
	Text    string
	Answers []string
}

// Set is one drawn quiz: a topic and its sampled questions.
type Set struct {
	Topic     string
	Questions []Question
}

type topicEntry struct {
	Topic     string                `json:"topic"`
	Questions map[string]answerList `json:"questions"`
}

// answerList accepts either "answer" or ["answer", "other answer"].
type answerList []string

func (a *answerList) UnmarshalJSON(raw []byte) error {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		*a = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

// Bank is an in-memory question database loaded once at startup.
type Bank struct {
	topics []topicEntry
}

// Load reads and parses the bank document at path.
func Load(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var doc struct {
		Topics []topicEntry `json:"_questions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(doc.Topics) == 0 {
		return nil, ErrEmptyBank
	}
	for _, t := range doc.Topics {
		if len(t.Questions) == 0 {
			return nil, fmt.Errorf("topic %q has no questions", t.Topic)
		}
	}
	return &Bank{topics: doc.Topics}, nil
}

// Topics returns the number of loaded topics.
func (b *Bank) Topics() int { return len(b.topics) }

// Pick chooses a random topic and samples up to n of its questions.
// Topics smaller than n yield all of their questions.
func (b *Bank) Pick(n int) Set {
	entry := b.topics[rand.Intn(len(b.topics))]

	prompts := make([]string, 0, len(entry.Questions))
	for q := range entry.Questions {
		prompts = append(prompts, q)
	}
	rand.Shuffle(len(prompts), func(i, j int) {
		prompts[i], prompts[j] = prompts[j], prompts[i]
	})
	if n > 0 && n < len(prompts) {
		prompts = prompts[:n]
	}

	set := Set{Topic: entry.Topic}
	for _, q := range prompts {
		set.Questions = append(set.Questions, Question{
			Text:    q,
			Answers: entry.Questions[q],
		})
	}
	return set
}
