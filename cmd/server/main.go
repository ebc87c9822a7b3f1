package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/code0ns/eventually/internal/config"
	"github.com/code0ns/eventually/internal/repository"
	"github.com/code0ns/eventually/internal/service"
	transportServer "github.com/code0ns/eventually/internal/transport/server"
	"log/slog"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	// Открытие подключения к БД.
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	repo := repository.NewSQLiteRepository(db)
	if err := repo.Init(); err != nil {
		logger.Error("Failed to initialize repository", "error", err)
		os.Exit(1)
	}

	// Инициализация бизнес-логики сервера.
	feed := service.NewFeedService(logger)
	auth := service.NewAuthService(repo, feed, []byte(cfg.JWTSecret), logger)
	requests := service.NewRequestService(repo, feed, logger)
	messages := service.NewMessageService(repo, feed, logger)

	handler := transportServer.NewHandler(auth, requests, messages, feed, logger)
	router := transportServer.SetupRouter(handler, cfg.WSPath)
	httpServer := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	// Запуск HTTP-сервера.
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Обработка graceful shutdown.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
