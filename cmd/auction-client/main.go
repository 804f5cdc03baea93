package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"auction-client/internal/api"
	"auction-client/internal/cache"
	"auction-client/internal/config"
	"auction-client/internal/domain"
	"auction-client/internal/lifecycle"
	"auction-client/internal/mutation"
	"auction-client/internal/queries"
	"auction-client/internal/session"
	"auction-client/internal/storage"
	"auction-client/internal/stream"
	"auction-client/pkg/logger"
)

// logAlerter writes user-facing notifications to the log. A UI embedding this
// core supplies its own Alerter instead.
type logAlerter struct {
	log logger.Logger
}

func (a *logAlerter) Alert(title, message, auctionID string) {
	a.log.Info("ALERT: "+title, "message", message, "auction_id", auctionID)
}

func (a *logAlerter) Toast(message string) {
	a.log.Info("TOAST: " + message)
}

// app groups the surfaces a UI embedding this core would hold on to.
type app struct {
	guard     *session.Guard
	queries   *queries.Queries
	mutations *mutation.Pipeline
	stream    *stream.Client
	poller    *cache.Poller
}

func main() {
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Token persistence
	tokenStore := storage.NewFileTokenStore(cfg.Token.Path, log)

	// Cache with retry policy
	c := cache.New(cache.RetryPolicy{
		Attempts:  cfg.Cache.RetryAttempts,
		BaseDelay: cfg.Cache.RetryBaseDelay,
		MaxDelay:  cfg.Cache.RetryMaxDelay,
	}, log)

	// API client. The token source closes over the guard, which is built
	// right after; the client never reads the token before a request runs.
	var guard *session.Guard
	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, domain.TokenFunc(func() string {
		return guard.Token()
	}), log)

	guard = session.NewGuard(apiClient, apiClient, tokenStore, c, cfg.Cache.UserStale, log)
	apiClient.SetAuthErrorHook(guard.InvalidateSession)

	alerter := &logAlerter{log: log}

	// Push stream. WebSocket endpoints get the websocket dialer, anything
	// else streams newline-delimited JSON over plain HTTP.
	var dialer domain.StreamDialer
	if strings.HasPrefix(cfg.Stream.Endpoint, "ws://") || strings.HasPrefix(cfg.Stream.Endpoint, "wss://") {
		dialer = stream.NewWebSocketDialer()
	} else {
		dialer = stream.NewHTTPDialer()
	}
	streamClient := stream.NewClient(dialer, c, guard.Session, alerter, cfg.Stream.Endpoint, cfg.Stream.ReconnectDelay, log)

	// Background polling for watched keys
	poller := cache.NewPoller(c, cfg.Cache.PollInterval, log)

	core := &app{
		guard:     guard,
		queries:   queries.New(apiClient, apiClient, apiClient, c, poller, guard.Session, cfg.Cache, log),
		mutations: mutation.NewPipeline(c, apiClient, guard.Session, alerter, log),
		stream:    streamClient,
		poller:    poller,
	}

	// Bind stream liveness to session transitions before restoring, so a
	// persisted token opens the stream on startup.
	controller := lifecycle.NewController(streamClient, log)
	guard.OnChange(controller.HandleSessionChange)
	guard.Restore()

	// Warm the caches for a restored session.
	if core.guard.Session().IsAuthenticated {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if res := core.queries.Notifications(ctx); res.Err != nil {
				log.Warn("Notification warm-up failed", "error", res.Err)
			}
			if res := core.queries.Auctions(ctx, "all", 1, 20); res.Err != nil {
				log.Warn("Auction list warm-up failed", "error", res.Err)
			}
		}()
	}

	log.Info("Auction client core started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	core.poller.Stop()
	core.stream.Disconnect()
}
