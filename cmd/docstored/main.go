// Command docstored runs the embedded document engine as a network service:
// the line protocol on the daemon port and the admin API over HTTP.
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

	"github.com/trendingmotion/motion-crm/internal/api"
	"github.com/trendingmotion/motion-crm/internal/config"
	"github.com/trendingmotion/motion-crm/internal/engine"
	"github.com/trendingmotion/motion-crm/internal/logger"
	"github.com/trendingmotion/motion-crm/internal/server"
	"github.com/trendingmotion/motion-crm/internal/vault"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.New(cfg.Log, "docstored")

	// 1. Load existing data and start the engine
	store, err := engine.Open(cfg.Store.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Str("data_dir", cfg.Store.DataDir).Msg("failed to open engine")
	}
	if cfg.Store.StrictIndexes {
		store.EnforceIndexes(engine.DefaultIndexes(cfg.Leads.Candidates()))
	}

	// 2. TCP router, optionally behind a self-signed certificate
	router := server.NewRouter(store, log)
	if !cfg.Store.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to generate TLS certificate")
		}
		router.SetCertificate(cert)
		log.Info().Msg("TLS encryption enabled")
	} else {
		log.Warn().Msg("TLS encryption disabled")
	}

	// 3. Admin API
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), allowAll())
	(&api.Handler{Store: store}).Register(r.Group("/api"))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Store.DaemonHTTPPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		IdleTimeout:  cfg.Server.IdleTimeoutDuration(),
	}
	go func() {
		log.Info().Str("port", cfg.Store.DaemonHTTPPort).Msg("admin API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("admin API failed")
		}
	}()

	// 4. Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, finalizing disk writes")
		router.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("admin API shutdown")
		}
	}()

	// 5. TCP server, blocks until Stop
	log.Info().Str("port", cfg.Store.DaemonPort).Msg("engine listening (TCP)")
	if err := router.Listen(cfg.Store.DaemonPort); err != nil {
		log.Error().Err(err).Msg("TCP server failed")
	}

	// Close waits for pending persistence.
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("engine close")
	}
	log.Info().Msg("persistence complete, exiting")
}

func allowAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
