package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/safar/axon-pharmacy/internal/account"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	"github.com/safar/axon-pharmacy/internal/config"
	"github.com/safar/axon-pharmacy/internal/database"
	httpapi "github.com/safar/axon-pharmacy/internal/http"
	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/session"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/safar/axon-pharmacy/internal/store/docstore"
	"github.com/safar/axon-pharmacy/internal/store/memstore"
	"github.com/safar/axon-pharmacy/internal/telegram"
	"github.com/safar/axon-pharmacy/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger := newLogger(&cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("backend", cfg.Store.Backend), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	sessions := session.NewManager(cfg.Auth.SessionTTL)
	accounts := account.NewService(st, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL), sessions, cfg.Chat.HistoryLimit, logger)
	if err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		logger.Error("failed to bootstrap admin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	model := llm.NewOpenAIClient(&cfg.LLM)
	tg := telegram.NewClient(&cfg.Telegram, logger)

	adminTools := tools.NewRegistry(logger)
	tools.RegisterAdmin(adminTools, st, tg)
	customerTools := tools.NewRegistry(logger)
	tools.RegisterCustomer(customerTools, st)

	server := httpapi.NewServer(httpapi.Deps{
		Accounts: accounts,
		Store:    st,
		Customer: assistant.NewExecutor(model, customerTools, assistant.CustomerPrompt, logger),
		Admin:    assistant.NewExecutor(model, adminTools, assistant.AdminPrompt, logger),
		Logger:   logger,
		GinMode:  cfg.Server.GinMode,
	})

	go pruneSessions(ctx, sessions, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("store", cfg.Store.Backend),
			slog.String("model", cfg.LLM.Model),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil

	case config.BackendFirestore:
		client, err := docstore.Open(ctx, cfg.Store.FirestoreProjectID, cfg.Store.FirestoreCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to firestore", slog.String("project", cfg.Store.FirestoreProjectID))
		return docstore.New(client), func() { client.Close() }, nil

	default:
		db, err := database.NewConnection(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db, "up"); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to database")
		return store.NewPostgres(db), func() { db.Close() }, nil
	}
}

func pruneSessions(ctx context.Context, sessions *session.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(); n > 0 {
				logger.Info("pruned expired sessions", slog.Int("count", n))
			}
		}
	}
}
