// Command motioncrm serves the CRM screens and JSON API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/trendingmotion/motion-crm/internal/config"
	"github.com/trendingmotion/motion-crm/internal/identity"
	"github.com/trendingmotion/motion-crm/internal/logger"
	"github.com/trendingmotion/motion-crm/internal/vault"
	"github.com/trendingmotion/motion-crm/internal/web"
	"github.com/trendingmotion/motion-crm/pkg/sdk"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.New(cfg.Log, "motioncrm")
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	store, err := sdk.Open(ctx, sdk.OptionsFromConfig(cfg.Store, cfg.Leads.Candidates()), log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open document store")
	}
	defer store.Close()

	var sessions identity.SessionStore
	switch cfg.Identity.SessionBackend {
	case "redis":
		client, err := identity.DialRedis(ctx, cfg.Identity.RedisAddr, cfg.Identity.RedisPassword, cfg.Identity.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Identity.RedisAddr).Msg("failed to connect to redis")
		}
		defer client.Close()
		sessions = identity.NewRedisSessions(client)
	default:
		sessions = identity.NewMemorySessions()
	}

	provider := identity.NewProvider(store, sessions, cfg.Identity.TTL(), log)
	if cfg.Identity.BootstrapEmail != "" {
		if err := provider.EnsureUser(ctx, cfg.Identity.BootstrapEmail, cfg.Identity.BootstrapPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to create bootstrap operator")
		}
	}

	key, err := sessionKey(cfg.Server.SessionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid session key")
	}
	if cfg.Server.SessionKey == "" {
		log.Warn().Msg("no session key configured, sessions will not survive a restart")
	}

	shell, err := web.New(store, provider, web.Options{
		Candidates:     cfg.Leads.Candidates(),
		SessionKey:     key,
		SecureCookies:  cfg.Server.SecureCookies,
		AllowedOrigins: cfg.Server.Origins(),
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build web server")
	}
	defer shell.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      shell.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		IdleTimeout:  cfg.Server.IdleTimeoutDuration(),
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Primary.Env).Msg("motioncrm listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func sessionKey(keyHex string) ([]byte, error) {
	if keyHex == "" {
		return vault.NewKey()
	}
	return vault.ParseKey(keyHex)
}
