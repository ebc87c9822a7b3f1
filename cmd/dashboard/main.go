package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/code0ns/eventually/internal/client"
	"github.com/code0ns/eventually/internal/config"
	"github.com/code0ns/eventually/internal/domain"
	"github.com/code0ns/eventually/internal/feed"
	"github.com/code0ns/eventually/internal/session"
	"log/slog"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "", "Account password")
	view := flag.String("view", "client", "Dashboard view to mount (client, agency, admin)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	required, err := domain.ParseRole(*view)
	if err != nil {
		logger.Error("Invalid view role", "error", err)
		os.Exit(1)
	}

	// Корень процесса владеет всеми клиентскими объектами и передаёт их
	// страницам явно.
	api := client.NewAPI(cfg.APIBaseURL, logger)
	feedClient := feed.NewClient(cfg.WSURL, logger)
	sess := session.NewStore(logger)
	dashboard := client.NewDashboard(api, feedClient, sess, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := dashboard.SignIn(ctx, *email, *password); err != nil {
		logger.Error("Sign in failed", "error", err)
		os.Exit(1)
	}

	v, err := dashboard.Mount(ctx, required)
	if err != nil {
		var redirect *client.RedirectError
		if errors.As(err, &redirect) {
			logger.Info("Redirect required", "route", redirect.Route)
			os.Exit(0)
		}
		logger.Error("Mount failed", "error", err)
		os.Exit(1)
	}

	// Периодически печатаем видимый срез коллекции и счётчик непрочитанных.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		id, _ := sess.Current()
		for {
			select {
			case <-ticker.C:
				if !v.LiveUpdates() {
					logger.Warn("Live updates unavailable, data may be stale")
				}
				for _, r := range v.Requests.VisibleTo(id) {
					logger.Info("Request", "id", r.ID, "title", r.Title, "status", r.Status)
				}
				logger.Info("Unread messages", "count", v.Unread.Value())
			case route := <-v.Redirects:
				logger.Info("View no longer authorized", "route", route)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// Graceful shutdown.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	logger.Info("Shutting down dashboard...")
	v.Unmount()
	dashboard.SignOut()
	logger.Info("Dashboard stopped")
}
