package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("QUESTION_PATH", "/tmp/bank.json")
	t.Setenv("QUESTIONS_PER_QUIZ", "3")
	t.Setenv("START_DELAY_SECONDS", "1")
	t.Setenv("QUESTION_TIMEOUT_SECONDS", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	require.Equal(t, "127.0.0.1:9000", cfg.Addr())
	require.Equal(t, "/tmp/bank.json", cfg.Quiz.QuestionPath)
	require.Equal(t, 3, cfg.Quiz.QuestionsPerQuiz)
	require.Equal(t, time.Second, cfg.Quiz.StartDelay)
	require.Equal(t, 30*time.Second, cfg.Quiz.QuestionTimeout)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_BadIntegerFallsBack(t *testing.T) {
	t.Setenv("QUESTIONS_PER_QUIZ", "plenty")
	t.Setenv("QUESTION_TIMEOUT_SECONDS", "")

	cfg := Load()
	require.Equal(t, 5, cfg.Quiz.QuestionsPerQuiz)
	require.Equal(t, time.Duration(0), cfg.Quiz.QuestionTimeout)
}
