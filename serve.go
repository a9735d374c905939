package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v71/github"
	"github.com/spf13/cobra"

	"discord-github-bridge/config"
	"discord-github-bridge/handlers"
	"discord-github-bridge/logger"
	"discord-github-bridge/services"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve the GitHub webhook endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(cfg.Env)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := services.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.CloseDatabase(db); err != nil {
			slog.Error("database close error", "error", err)
		}
	}()
	slog.Info("database opened", "path", cfg.DatabasePath)

	store := services.NewMappingStore(db)

	httpClient, err := services.NewGitHubHTTPClient(cfg.GitHub)
	if err != nil {
		return err
	}
	tracker := services.NewGitHubTracker(github.NewClient(httpClient), cfg.GitHub.Owner, cfg.GitHub.Repo)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = handlers.DiscordIntents
	chat := services.NewDiscordClient(session)

	guard := services.NewBotActionGuard(cfg.BotActionWindow, nil)
	bridge := handlers.NewBridge(store, guard, chat, tracker, cfg.Discord.ForumChannelID, []byte(cfg.GitHub.WebhookSecret))

	handlers.RegisterDiscordHandlers(ctx, session, bridge)
	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	defer session.Close()

	// コマンド登録の失敗ではイベントの同期は止めない
	if err := handlers.RegisterSlashCommands(session, cfg.Discord.GuildID); err != nil {
		slog.Error("slash command registration failed", "error", err)
	}

	go runCleanupLoop(ctx, store, chat, cfg.CleanupInterval)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              ":" + cfg.WebhookPort,
		Handler:           handlers.SetupRouter(bridge),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("webhook server starting", "port", cfg.WebhookPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("webhook server error: %w", err)
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("webhook server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// runCleanupLoop は削除済みスレッドのマッピングを定期的に掃除する
func runCleanupLoop(ctx context.Context, store *services.MappingStore, fetcher services.ChannelFetcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := services.CleanupDeletedThreads(ctx, store, fetcher)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("thread cleanup error", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("thread cleanup finished", "removed", removed)
			}
		}
	}
}
