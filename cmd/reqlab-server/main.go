package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reqlab/reqlab/internal/config"
	"github.com/reqlab/reqlab/internal/docstore"
	"github.com/reqlab/reqlab/internal/server"
)

var version = "dev"

func main() {
	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	var (
		addr      string
		dbPath    string
		clientURL string
		seed      bool
	)
	flag.StringVar(&addr, "addr", settings.ListenAddr, "Listen address")
	flag.StringVar(&dbPath, "db", "reqlab-sandbox.db", "Path to the sandbox database")
	flag.StringVar(&clientURL, "client-url", envOr("CLIENT_URL", "http://localhost:3000"), "Origin allowed by CORS")
	flag.BoolVar(&seed, "seed", false, "Seed the user collection with sample data on startup")
	flag.Parse()

	log.Printf("reqlab-server %s, client url %s", version, clientURL)

	store, err := docstore.Open(dbPath)
	if err != nil {
		log.Fatalf("open document store: %v", err)
	}
	defer store.Close()

	if seed {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		users, err := store.Seed(ctx)
		cancel()
		if err != nil {
			log.Fatalf("seed database: %v", err)
		}
		log.Printf("seeded %d users", len(users))
	}

	app := server.New(store, server.Options{ClientURL: clientURL})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- app.Listen(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
