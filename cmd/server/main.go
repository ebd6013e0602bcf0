package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/config"
	"github.com/vedran77/pulseboard/internal/database"
	"github.com/vedran77/pulseboard/internal/pubsub"
	"github.com/vedran77/pulseboard/internal/repository"
	"github.com/vedran77/pulseboard/internal/repository/memory"
	"github.com/vedran77/pulseboard/internal/repository/mongodb"
	postgresrepo "github.com/vedran77/pulseboard/internal/repository/postgres"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/internal/transport/http/handlers"
	"github.com/vedran77/pulseboard/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

type repositories struct {
	channels repository.ChannelRepository
	messages repository.MessageRepository
	users    repository.UserDirectory
	projects repository.ProjectDirectory
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Storage
	repos, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	// Fan-out bus
	var bus pubsub.Bus = pubsub.NewLocalBus()
	if cfg.RedisURL != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		bus = pubsub.NewRedisBus(rdb, pubsub.DefaultPrefix, log)
		log.Info().Msg("Connected to Redis")
	}

	// Services
	channelService := service.NewChannelService(repos.channels, repos.messages, repos.projects)
	messageService := service.NewMessageService(repos.messages, repos.channels, repos.users)
	messageService.SetHistoryLimits(cfg.HistoryDefault, cfg.HistoryMax)

	// WebSocket hub
	hub := ws.NewHub(bus, messageService, channelService, cfg.TypingTTL, log)
	notifier := ws.NewHubNotifier(hub)
	channelService.SetNotifier(notifier)
	messageService.SetNotifier(notifier)

	router := handlers.NewRouter(handlers.RouterConfig{
		Channels:       channelService,
		Messages:       messageService,
		WebSocket:      ws.ServeWS(hub, repos.users, cfg.JWTSecret, originPatterns(cfg.AllowedOrigins)),
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := database.ConnectPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("Connected to Postgres")
		return &repositories{
			channels: postgresrepo.NewChannelRepo(pool),
			messages: postgresrepo.NewMessageRepo(pool),
			users:    postgresrepo.NewUserRepo(pool),
			projects: postgresrepo.NewProjectRepo(pool),
			close:    pool.Close,
		}, nil

	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store; data is lost on exit")
		store := memory.New()
		return &repositories{
			channels: store.Channels(),
			messages: store.Messages(),
			users:    store.Users(),
			projects: store.Projects(),
			close:    func() {},
		}, nil

	default:
		db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		store := mongodb.New(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			db.Client().Disconnect(context.Background())
			return nil, err
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("Connected to MongoDB")
		return &repositories{
			channels: store.Channels(),
			messages: store.Messages(),
			users:    store.Users(),
			projects: store.Projects(),
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				db.Client().Disconnect(ctx)
			},
		}, nil
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "pulseboard").Logger()
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake checks against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			out = append(out, o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
