package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizlive-service/internal/app"
	"quizlive-service/internal/config"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
	pginfra "quizlive-service/internal/infra/postgres"
	redisinfra "quizlive-service/internal/infra/redis"
	transport "quizlive-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 4*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var archivers []app.ResultArchiver
	if pool != nil {
		archivers = append(archivers, pginfra.NewResultArchiver(pool))
	}
	if redisClient != nil {
		resultTTL := config.TTLDuration(cfg.Session.ResultTTL, 24*time.Hour)
		archivers = append(archivers, redisinfra.NewResultStore(redisClient, resultTTL))
	}

	service := app.NewService(store, quizRepo, app.ServiceOptions{
		JoinCodeLength: cfg.Session.JoinCodeLength,
		BasePoints:     cfg.Session.BasePoints,
		HostGrace:      config.TTLDuration(cfg.Session.HostGrace, 30*time.Second),
		Logger:         logger,
	}, archivers...)

	wsHandler := transport.NewWSHandler(service, logger)
	apiHandler := transport.NewAPIHandler(service, wsHandler, cfg.Server.HostKey, logger)

	// No global read/write timeouts: websocket connections manage their own
	// deadlines. Header parsing still gets a bound.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           apiHandler.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting session coordinator", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds demo content when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Demo quiz",
			Categories: []domain.Category{
				{Name: "Math", Weight: 0.7},
				{Name: "Logic", Weight: 0.3},
			},
			Questions: []domain.Question{
				{
					ID:           "q1",
					Text:         "What is 2 + 2?",
					Type:         domain.QuestionMultipleChoice,
					TimeLimitSec: 20,
					Category:     "Math",
					Answers: []domain.AnswerOption{
						{ID: "a1", Text: "3"},
						{ID: "a2", Text: "4", Correct: true},
						{ID: "a3", Text: "5"},
					},
				},
				{
					ID:       "q2",
					Text:     "The sky is green.",
					Type:     domain.QuestionTrueFalse,
					Category: "Logic",
					Answers: []domain.AnswerOption{
						{ID: "t", Text: "True"},
						{ID: "f", Text: "False", Correct: true},
					},
				},
			},
		},
	}
}
