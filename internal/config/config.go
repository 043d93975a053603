// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Quiz    QuizConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type QuizConfig struct {
	// QuestionPath points at the question bank JSON document.
	QuestionPath string
	// QuestionsPerQuiz is the sample size drawn from the chosen topic.
	QuestionsPerQuiz int
	// StartDelay is the pause between "start" and the first question.
	StartDelay time.Duration
	// QuestionTimeout bounds how long a single question stays open.
	// Zero disables the deadline and a question waits indefinitely.
	QuestionTimeout time.Duration
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnv("PORT", "5050"),
		},
		Quiz: QuizConfig{
			QuestionPath:     getEnv("QUESTION_PATH", "data/questions.json"),
			QuestionsPerQuiz: getEnvInt("QUESTIONS_PER_QUIZ", 5),
			StartDelay:       time.Duration(getEnvInt("START_DELAY_SECONDS", 5)) * time.Second,
			QuestionTimeout:  time.Duration(getEnvInt("QUESTION_TIMEOUT_SECONDS", 0)) * time.Second,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
