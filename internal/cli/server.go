package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
	"trivia-quiz-service/internal/infra/opentdb"
	pgstats "trivia-quiz-service/internal/infra/postgres"
	redisstore "trivia-quiz-service/internal/infra/redis"
	"trivia-quiz-service/internal/logger"
	transport "trivia-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

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

	var store app.SessionStore = memory.NewSessionStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redisstore.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	}

	var supplier app.QuestionSupplier = memory.NewStaticSupplier(sampleQuestions())
	if cfg.Trivia.BaseURL != "" {
		supplier = opentdb.NewSupplier(cfg.Trivia.BaseURL, config.TTLDuration(cfg.Trivia.Timeout, 10*time.Second))
	}

	var stats app.StatsRecorder = memory.NewStatsRecorder()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		stats = pgstats.NewStatsRepository(pool)
	}

	service := app.NewSessionService(store, supplier, stats, log)
	defer service.Close()
	wsHandler := transport.NewWSHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions backs the static supplier when no trivia API is
// configured; handy for local demos without network access.
func sampleQuestions() []domain.QuestionItem {
	return []domain.QuestionItem{
		{
			Prompt:           "What is the capital of France?",
			CorrectAnswer:    "Paris",
			IncorrectAnswers: []string{"London", "Berlin", "Madrid"},
			DisplayedAnswers: []string{"London", "Paris", "Madrid", "Berlin"},
		},
		{
			Prompt:           "Which planet is known as the Red Planet?",
			CorrectAnswer:    "Mars",
			IncorrectAnswers: []string{"Venus", "Jupiter", "Mercury"},
			DisplayedAnswers: []string{"Mars", "Jupiter", "Venus", "Mercury"},
		},
		{
			Prompt:           "How many sides does a hexagon have?",
			CorrectAnswer:    "6",
			IncorrectAnswers: []string{"5", "7", "8"},
			DisplayedAnswers: []string{"5", "6", "8", "7"},
		},
		{
			Prompt:           "Which element has the chemical symbol O?",
			CorrectAnswer:    "Oxygen",
			IncorrectAnswers: []string{"Gold", "Osmium", "Iron"},
			DisplayedAnswers: []string{"Osmium", "Iron", "Oxygen", "Gold"},
		},
		{
			Prompt:           "In which year did the first moon landing take place?",
			CorrectAnswer:    "1969",
			IncorrectAnswers: []string{"1965", "1971", "1959"},
			DisplayedAnswers: []string{"1971", "1969", "1959", "1965"},
		},
	}
}
