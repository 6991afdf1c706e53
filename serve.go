package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/CrowderSoup/begtask/handlers"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, WebSocket hub and static frontend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return serve(a)
		},
	}
}

func serve(a *app) error {
	cfg := a.cfg

	maxSize := cfg.Storage.MaxSize
	r := handlers.NewRouter(handlers.Handlers{
		Middleware: handlers.NewAuthMiddleware(a.auth, a.data),
		Auth:       handlers.NewAuthHandler(a.auth, a.data, cfg.Server.PublicURL, !a.mailConfigured),
		Boards:     handlers.NewBoardHandler(a.data, a.boards, a.auth, a.notifier, a.index, a.storage, maxSize),
		Profile:    handlers.NewProfileHandler(a.data, a.storage, maxSize),
		Assistant:  handlers.NewAssistantHandler(a.data, a.boards, a.assistant, a.generator, a.index),
		Realtime:   handlers.NewRealtimeHandler(a.data, a.boards, a.hub, cfg.Server.AllowedOrigins),
		Admin:      handlers.NewAdminHandler(a.data),
		FilesDir:   a.storage.Dir(),
		StaticDir:  cfg.Server.StaticDir,
	})

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
