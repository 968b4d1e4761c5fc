package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/api"
	"github.com/opcron/opcron/internal/auth"
	"github.com/opcron/opcron/internal/config"
	"github.com/opcron/opcron/internal/jobs"
	"github.com/opcron/opcron/internal/logger"
	"github.com/opcron/opcron/internal/mail"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
	"github.com/opcron/opcron/internal/scheduler"
	"github.com/opcron/opcron/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg := loadConfig(*configPath)

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	db, err := store.Open(cfg.Database.Path, zl)
	if err != nil {
		zl.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := bootstrapAdmin(db, cfg, zl); err != nil {
		zl.Fatal("Failed to bootstrap admin user", zap.Error(err))
	}

	authService, err := auth.NewService(db, auth.Config{
		TokenExpiry:  cfg.Auth.TokenExpiry,
		KeepLoggedIn: cfg.Auth.KeepLoggedIn,
		CookieName:   cfg.Auth.CookieName,
	}, zl)
	if err != nil {
		zl.Fatal("Failed to initialize auth service", zap.Error(err))
	}

	sender := mail.NewSender(cfg.SMTP)
	registry := jobs.NewRegistry(db, sender, zl)

	jobStore := scheduler.NewJobStore(db, zl)
	sched := scheduler.New(jobStore, cfg.Scheduler.Tick, cfg.Scheduler.JobTimeout, zl)
	sched.SetExecutor(registry.Execute)

	hub := api.NewHub(zl)
	registry.OnLog = hub.BroadcastJobLog

	restAPI := api.New(db, authService, sched, registry, hub, cfg.RateLimit, zl)

	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      restAPI.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		zl.Info("opcron listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zl.Warn("Shutdown signal received. Initializing graceful shutdown")
	case err := <-errChan:
		zl.Fatal("Server error triggered shutdown", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}
	zl.Info("Server shutdown completed")
}

func loadConfig(path string) *config.Opcron {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// bootstrapAdmin creates the initial admin account holding every permission
// when the users table is empty.
func bootstrapAdmin(db *store.Store, cfg *config.Opcron, zl *zap.Logger) error {
	count, err := db.CountUsers()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := cfg.Auth.BootstrapPassword
	if password == "" {
		password = "admin"
	}
	hash, salt, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &model.User{
		Username:    "admin",
		Password:    hash,
		Salt:        salt,
		Permissions: perm.AllNames(),
		IsAdmin:     true,
		IsActive:    true,
	}
	if err := db.CreateUser(admin); err != nil {
		return err
	}
	zl.Info("bootstrap admin user created", zap.Int64("id", admin.ID))
	return nil
}
