package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/server"
	"github.com/parley-chat/parley/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	config := server.NewConfigFromEnv()
	if config.JWTSecret == "" {
		log.Fatal("PARLEY_JWT_SECRET must be set")
	}
	server.SetConfig(config)

	st, err := store.Open(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store at %s: %v", config.DBPath, err)
	}
	defer st.Close()

	tokens := auth.NewTokens(config.JWTSecret, config.TokenTTL)

	hub := server.NewHub()
	relay := server.NewRelay(hub, st, tokens)
	go hub.Run()

	httpServer := server.CreateServer(config.Addr, relay.Routes())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
		if err := hub.Shutdown(shutdownTimeout); err != nil {
			log.Printf("Hub shutdown error: %v", err)
		}
	}()

	if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
