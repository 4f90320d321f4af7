package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/poe-chat/chatd/internal/api"
	"github.com/poe-chat/chatd/internal/catalog"
	"github.com/poe-chat/chatd/internal/config"
	"github.com/poe-chat/chatd/internal/core"
	"github.com/poe-chat/chatd/internal/store"
	"github.com/poe-chat/chatd/internal/stream"
)

var portOverride string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&portOverride, "port", "", "HTTP port (overrides HTTP_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if portOverride != "" {
		cfg.HTTPPort = portOverride
	}
	if cfg.Debug() {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize state store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL, cfg.MaxStateBytes)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	models, err := catalog.LoadFile(cfg.ModelsFile)
	if err != nil {
		return fmt.Errorf("failed to load model catalog: %w", err)
	}

	conversations := core.NewConversationStore(dbStore)
	settings := core.NewSettingsService(dbStore, cfg)
	llmService := core.NewLLMService(cfg)
	chatService := core.NewChatService(conversations, settings, models, stream.NewNormalizer(nil), llmService, cfg)
	defer chatService.Close()

	if bc := settings.BackendConfig(); bc.Choice.Backend == stream.BackendFallback {
		log.Printf("Replies will use the fallback backend: %s", bc.Choice.Reason)
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, conversations, settings, models)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: a streamed reply lasts as long as the model writes.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}
	log.Println("Shutting down server...")

	// Give active streams time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// chatService.Close() and dbStore.Close() will be called by their defers.
	log.Println("Server exiting gracefully")
	return nil
}
