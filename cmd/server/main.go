package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"wellness-chatbot/internal/config"
	"wellness-chatbot/internal/core"
	"wellness-chatbot/internal/db"
	httpserver "wellness-chatbot/internal/http"

	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Sessions live in memory unless a database is configured
	var store core.SessionStore = core.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer dbConn.Close()
		// Verify connection
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dbConn.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping database: %v", err)
		}
		if err := db.Migrate(context.Background(), dbConn); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		store = db.NewRepository(dbConn)
		log.Println("using postgres session store")
	}

	// Sessions nobody has written to within the idle TTL are ended
	go core.ReapIdle(context.Background(), store, cfg.Session.IdleTTL, cfg.Session.SweepInterval)

	chatService := config.NewChatService(cfg)
	srv, err := httpserver.NewServer(store, chatService)
	if err != nil {
		log.Fatalf("failed to construct server: %v", err)
	}
	addr := ":" + cfg.Port
	log.Printf("Listening on %s (model %s)", addr, cfg.OpenAI.Model)
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
