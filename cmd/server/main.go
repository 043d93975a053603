package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/fwiko/multiplayer-quiz/internal/config"
	"github.com/fwiko/multiplayer-quiz/internal/httpapi"
	"github.com/fwiko/multiplayer-quiz/internal/match"
	"github.com/fwiko/multiplayer-quiz/internal/questions"
	"github.com/fwiko/multiplayer-quiz/internal/quiz"
	"github.com/fwiko/multiplayer-quiz/internal/registry"
)

func main() {
	// Best-effort: running without a .env file is fine.
	_ = godotenv.Load()
	cfg := config.Load()

	log := buildLogger(cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	bank, err := questions.Load(cfg.Quiz.QuestionPath)
	if err != nil {
		log.Fatal("load question bank", zap.String("path", cfg.Quiz.QuestionPath), zap.Error(err))
	}
	log.Info("question bank loaded", zap.Int("topics", bank.Topics()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(ctx, match.Config{
		StartDelay:      cfg.Quiz.StartDelay,
		QuestionTimeout: cfg.Quiz.QuestionTimeout,
	}, drawFrom(bank, cfg.Quiz.QuestionsPerQuiz), log.Named("registry"))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: httpapi.SetupRoutes(reg, log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped")
}

// drawFrom adapts the question bank into the match package's draw
// function, normalizing accepted answers once at draw time.
func drawFrom(bank *questions.Bank, perQuiz int) match.DrawFunc {
	return func() (string, []quiz.Question, error) {
		set := bank.Pick(perQuiz)
		qs := make([]quiz.Question, 0, len(set.Questions))
		for _, q := range set.Questions {
			accepted := make([]string, 0, len(q.Answers))
			for _, a := range q.Answers {
				accepted = append(accepted, quiz.Normalize(a))
			}
			qs = append(qs, quiz.Question{Text: q.Text, Answers: accepted})
		}
		return set.Topic, qs, nil
	}
}

func buildLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
