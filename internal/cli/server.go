package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
	"quiz-room-service/internal/infra/postgres"
	infraredis "quiz-room-service/internal/infra/redis"
	"quiz-room-service/internal/janitor"
	"quiz-room-service/internal/logging"
	"quiz-room-service/internal/scoring"
	transport "quiz-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	checks := map[string]transport.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		checks["redis"] = transport.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var rooms app.RoomRepository = memory.NewRoomStore()
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		if err := migrateDB(ctx, db, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)
		rooms = postgres.NewRoomStore(db)
		checks["postgres"] = transport.PingFunc(db.PingContext)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	hub := broadcast.NewHub()
	var (
		quizRepo  app.QuizRepository
		presence  app.PresenceTracker
		publisher broadcast.Publisher = hub
	)
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		presence = infraredis.NewPresenceStore(redisClient, redisTTL)
		publisher = infraredis.NewEventPublisher(redisClient)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		presence = memory.NewPresenceStore()
	}

	service := app.NewRoomService(rooms, quizRepo, presence, publisher, serviceOptions(cfg), logger)

	router := transport.NewRouter(
		transport.NewAPI(service, logger),
		transport.NewWSHandler(service, hub, logger),
		transport.NewHealth(checks, logger),
		logger,
	)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz room service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if redisClient != nil {
		g.Go(func() error {
			return infraredis.Relay(gctx, redisClient, hub, logger, nil)
		})
	}
	staleAfter := config.TTLDuration(cfg.Room.StaleAfter, time.Hour)
	g.Go(func() error {
		return janitor.New(service, cfg.Room.SweepSchedule, staleAfter, logger).Run(gctx)
	})

	return g.Wait()
}

func serviceOptions(cfg config.Config) app.Options {
	return app.Options{
		CodeLength:             cfg.Room.CodeLength,
		DefaultMaxParticipants: cfg.Room.DefaultMaxParticipants,
		DefaultTimeLimit:       int(config.TTLDuration(cfg.Room.DefaultQuestionTimeLimit, 30*time.Second) / time.Second),
		Scoring: scoring.Rules{
			CorrectPoints:  cfg.Scoring.CorrectPoints,
			LightningBonus: cfg.Scoring.LightningBonus,
			FastBonus:      cfg.Scoring.FastBonus,
			NormalBonus:    cfg.Scoring.NormalBonus,
		},
	}
}

// sampleQuizzes backs the service when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Irregular verbs",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is the past tense of \"go\"?",
					Options: []domain.Option{
						{ID: "o1", Text: "goed"},
						{ID: "o2", Text: "went", Correct: true},
						{ID: "o3", Text: "gone"},
					},
				},
				{
					ID:     "q2",
					Prompt: "What is the past tense of \"see\"?",
					Options: []domain.Option{
						{ID: "o1", Text: "saw", Correct: true},
						{ID: "o2", Text: "seen"},
						{ID: "o3", Text: "seed"},
					},
				},
				{
					ID:     "q3",
					Prompt: "What is the past tense of \"teach\"?",
					Options: []domain.Option{
						{ID: "o1", Text: "teached"},
						{ID: "o2", Text: "taught", Correct: true},
					},
				},
			},
		},
	}
}
