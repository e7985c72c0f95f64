package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"deskagent/internal/audit"
	"deskagent/internal/calendar"
	"deskagent/internal/calendarhttp"
	"deskagent/internal/catalog"
	"deskagent/internal/channel/chatws"
	"deskagent/internal/channel/httpwebhook"
	"deskagent/internal/clock"
	"deskagent/internal/config"
	"deskagent/internal/engine"
	"deskagent/internal/faq"
	"deskagent/internal/httpserver"
	"deskagent/internal/session"
)

// sweepInterval drives the background eviction of idle sessions; it runs
// far more often than SessionTTL so an abandoned conversation never lingers
// much past its deadline even though the engine's own lazy expiry check
// would eventually catch it too.
const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("failed to load prompt catalog: %v", err)
	}

	store, closeStore := buildSessionStore(cfg, logger)
	defer closeStore()

	auditSink, closeAudit := buildAuditSink(cfg, logger)
	defer closeAudit()

	primaryCalendar, fallbackCalendar := buildCalendar(cfg, logger)

	eng := engine.New(engine.Deps{
		Store:    store,
		Catalog:  cat,
		Calendar: primaryCalendar,
		Fallback: fallbackCalendar,
		FAQ:      faq.NewLexicalMatcher(),
		Audit:    auditSink,
		Clock:    clock.System{},
		Logger:   logger,
		Config: engine.Config{
			BusinessName:          cfg.Engine.BusinessName,
			Language:              cfg.Engine.Language,
			FAQThreshold:          cfg.Engine.FAQThreshold,
			MaxMessageLength:      cfg.Engine.MaxMessageLength,
			MaxSlotsProposed:      cfg.Engine.MaxSlotsProposed,
			ConfirmRetryMax:       cfg.Engine.ConfirmRetryMax,
			MaxTurnsAntiLoop:      cfg.Engine.MaxTurnsAntiLoop,
			MaxContextFails:       cfg.Engine.MaxContextFails,
			ContactConfirmEnabled: cfg.Engine.ContactConfirmEnabled,
		},
	})

	webhookHandler := httpwebhook.NewHandler(eng, logger)
	chatHandler := chatws.NewHandler(eng, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:  logger,
		Webhook: webhookHandler,
		Chat:    chatHandler,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runSweeper(ctx, store, logger)

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// sweeper and ctxSweeper are the two ClearExpired shapes the background
// eviction loop accepts: MemoryStore satisfies sweeper, SQLiteStore
// satisfies ctxSweeper. Neither is part of the session.Store interface
// proper (the engine itself never calls ClearExpired).
type sweeper interface {
	ClearExpired(now time.Time) int
}

type ctxSweeper interface {
	ClearExpired(ctx context.Context, now time.Time) (int, error)
}

// runSweeper periodically evicts idle sessions so a conversation nobody
// ever sends a next message on doesn't occupy storage forever. It stops
// when ctx is cancelled, i.e. on the same signal that triggers server
// shutdown.
func runSweeper(ctx context.Context, store session.Store, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			switch s := store.(type) {
			case sweeper:
				if n := s.ClearExpired(now); n > 0 {
					logger.Info("session sweep", slog.Int("cleared", n))
				}
			case ctxSweeper:
				n, err := s.ClearExpired(ctx, now)
				if err != nil {
					logger.Warn("session sweep failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.Info("session sweep", slog.Int("cleared", n))
				}
			}
		}
	}
}

func buildSessionStore(cfg config.Config, logger *slog.Logger) (session.Store, func()) {
	if cfg.Storage.SQLitePath == "" {
		return session.NewMemoryStore(cfg.SessionTTL), func() {}
	}
	store, err := session.OpenSQLiteStore(cfg.Storage.SQLitePath, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to open sqlite session store: %v", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("session store close failed", slog.String("error", err.Error()))
		}
	}
}

func buildAuditSink(cfg config.Config, logger *slog.Logger) (audit.Sink, func()) {
	if cfg.Storage.SQLitePath == "" {
		return audit.NewMemorySink(), func() {}
	}
	sink, err := audit.OpenSQLiteSink(cfg.Storage.SQLitePath, logger)
	if err != nil {
		log.Fatalf("failed to open sqlite audit sink: %v", err)
	}
	return sink, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("audit sink close failed", slog.String("error", err.Error()))
		}
	}
}

// buildCalendar wires the HTTP-backed reference calendar as the primary
// backend when CALENDAR_BASE_URL is set, with the local redis-backed
// fallback behind it when REDIS_ADDR is set too. At least one of the two
// must be configured for the engine to serve booking traffic.
func buildCalendar(cfg config.Config, logger *slog.Logger) (primary, fallback calendar.Backend) {
	if cfg.Calendar.BaseURL != "" {
		primary = calendarhttp.New(calendarhttp.Config{
			BaseURL: cfg.Calendar.BaseURL,
			Timeout: cfg.Calendar.Timeout,
		}, logger)
	}
	if cfg.Storage.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		redisBackend := calendar.NewRedisFallback(client)
		if primary == nil {
			primary = redisBackend
		} else {
			fallback = redisBackend
		}
	}
	return primary, fallback
}

func newLogger(level string) *slog.Logger {
	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
