// Command warden runs the group moderation service: the platform event loop
// (join-request challenges, photo moderation, admin commands) plus an
// operational HTTP server for probes, metrics, and read-only inspection.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/osokin/go-group-warden/internal/admin"
	"github.com/osokin/go-group-warden/internal/app"
	"github.com/osokin/go-group-warden/internal/cache"
	"github.com/osokin/go-group-warden/internal/challenge"
	"github.com/osokin/go-group-warden/internal/config"
	"github.com/osokin/go-group-warden/internal/coordinator"
	"github.com/osokin/go-group-warden/internal/gateway/telegram"
	"github.com/osokin/go-group-warden/internal/httpops"
	"github.com/osokin/go-group-warden/internal/moderation"
	"github.com/osokin/go-group-warden/internal/notify"
	"github.com/osokin/go-group-warden/internal/observability"
	"github.com/osokin/go-group-warden/internal/policy"
	"github.com/osokin/go-group-warden/internal/ratelimit"
	"github.com/osokin/go-group-warden/internal/repo"
	"github.com/osokin/go-group-warden/internal/settings"
	"github.com/osokin/go-group-warden/internal/sysutil"
	"github.com/osokin/go-group-warden/internal/vision"
)

var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrating database failed")
	}

	redis, err := cache.NewRedis(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("connecting to redis failed")
	}
	defer redis.Close()

	client, err := telegram.New(cfg.Platform)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to the chat platform failed")
	}
	source := telegram.NewSource(client, cfg.Platform.PollTimeout)

	var sink notify.Sink = notify.LogSink{}
	if cfg.LogChannelID != 0 {
		sink = &notify.ChannelSink{Client: client, ChannelID: cfg.LogChannelID}
	}

	policies := policy.NewRepository(db, redis)
	auth := admin.NewAuthorizer(db, client)
	timers := coordinator.NewScheduler(ctx)

	terms, err := loadDenylistTerms(cfg.DenylistFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DenylistFile).Msg("reading denylist file failed")
	}
	denylist, err := moderation.NewDenylist(terms)
	if err != nil {
		log.Fatal().Err(err).Msg("compiling denylist failed")
	}

	var classifier vision.Classifier
	if cfg.Vision.Endpoint != "" {
		classifier = vision.NewHTTPClassifier(cfg.Vision.Endpoint, cfg.Vision.APIKey, cfg.Vision.Timeout)
	} else {
		log.Warn().Msg("no vision endpoint configured, photo moderation runs on captions and OCR off")
		classifier = vision.Disabled{}
	}

	dispatcher := &app.Dispatcher{
		Coordinator: &coordinator.Coordinator{
			DB:       db,
			Cache:    redis,
			Policies: policies,
			Engine:   challenge.NewEngine(cfg.Challenge.MaxAttempts),
			Client:   client,
			Limiter:  ratelimit.NewLimiter(redis),
			Sink:     sink,
			Timers:   timers,
			Cfg:      cfg.Challenge,
		},
		Pipeline: &moderation.Pipeline{
			DB:         db,
			Policies:   policies,
			Client:     client,
			Fetcher:    client,
			Classifier: classifier,
			Auth:       auth,
			Sink:       sink,
			Timers:     timers,
			Denylist:   denylist,
			Threshold:  cfg.Vision.Threshold,
			OCR:        cfg.Vision.OCR,
			NoticeTTL:  cfg.NoticeSelfDelete,
		},
		Settings: settings.NewHandler(settings.NewService(policies, auth), client),
	}

	router := gin.New()
	httpops.RegisterRoutes(router, db, policies, cfg, map[string]httpops.ReadyCheck{
		"redis": redis.Ping,
		"sqlite": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
	server := httpops.NewServer(cfg, router)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server failed")
			stop()
		}
	}()

	go source.Run(ctx)

	log.Info().Str("version", version).Msg("warden started")
	dispatcher.Run(ctx, source)

	// Either the signal context fired or the update stream ended.
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown failed")
	}
	timers.Wait()
	log.Info().Msg("shutdown complete")
}

// loadDenylistTerms reads one term per line, skipping blanks and # comments.
// An empty path means the built-in term list.
func loadDenylistTerms(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var terms []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	return terms, nil
}
