// Package main is the entry point for the crudschema API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crudschema/internal/auth"
	"crudschema/internal/config"
	"crudschema/internal/engine"
	"crudschema/internal/infrastructure/cache"
	v1 "crudschema/internal/infrastructure/http/v1"
	"crudschema/internal/infrastructure/storage/postgres"
	"crudschema/internal/mutation"
	"crudschema/internal/schema"
	"crudschema/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./crudschema.yaml when present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting crudschema server")

	if cfg.Database.URL == "" {
		log.Fatal("database.url is required (CRUDSCHEMA_DATABASE_URL)")
	}

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.Database.StatementTimeout
	txManager := postgres.NewTxManager(pool, txOpts)

	// --- Schemas ---
	store := schema.NewStore(schema.DirLoader{Dir: cfg.Schemas.Dir})

	validator, err := mutation.NewValidator()
	if err != nil {
		log.Fatalw("failed to build validator", "error", err)
	}

	eng := engine.New(store, txManager, validator, engine.Options{
		MaxPageSize:         cfg.Listing.MaxPageSize,
		CaseSensitiveSearch: cfg.Listing.CaseSensitiveSearch,
	})
	if _, err := eng.Reload(ctx); err != nil {
		log.Fatalw("failed to load schemas", "dir", cfg.Schemas.Dir, "error", err)
	}

	if cfg.Schemas.Listen {
		listener := cache.NewSchemaListener(cache.PoolSource(pool.Unwrap()), eng, cfg.Schemas.Channel)
		listener.Start(ctx)
		defer listener.Stop()
	}

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
	jwtConfig.Issuer = cfg.Auth.Issuer
	jwtConfig.AccessTokenTTL = cfg.Auth.TokenTTL
	jwtService := auth.NewJWTService(jwtConfig)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, every request is anonymous")
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Engine:          eng,
		Schemas:         store,
		DB:              pool,
		Pool:            pool,
		Logger:          log,
		JWTValidator:    jwtService,
		DefaultPageSize: cfg.Listing.DefaultPageSize,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr, "models", len(store.Models()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
