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

	"chess-moves/internal/audit"
	"chess-moves/internal/auth"
	"chess-moves/internal/config"
	"chess-moves/internal/db"
	"chess-moves/internal/eventbus"
	"chess-moves/internal/handlers"
	"chess-moves/internal/middleware"
	"chess-moves/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Load configuration
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Seats.Secret == "" {
		log.Fatalf("seats.secret must be set")
	}

	log.Printf("Starting chess move server in %s mode (default rules: %s)", cfg.Environment, cfg.Game.DefaultRules)

	// Connect to MongoDB
	mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	log.Printf("Connected to MongoDB database: %s", cfg.MongoDB.Database)

	// Initialize auth services
	seatService := auth.NewSeatService(cfg.Seats.Secret, time.Duration(cfg.Seats.TTLHours)*time.Hour)
	passcodeService := auth.NewPasscodeService(cfg.Game.PasscodeCost)

	// Background services
	sweeper := services.NewAbandonedGameSweeper(mongodb, time.Duration(cfg.Game.AbandonAfterMinutes)*time.Minute)
	sweeper.Start()
	defer sweeper.Stop()

	rateLimiter := middleware.NewRateLimiter()
	defer rateLimiter.Stop()

	// Create handlers
	wsHandler := handlers.NewWebSocketHandler(mongodb, seatService)

	// Relay broadcasts to other instances when several share the database
	var eventsCollection *mongo.Collection
	if cfg.Server.MultiInstance {
		eventsCollection = mongodb.WSEvents()
	}
	bus := eventbus.New(eventsCollection, wsHandler.GetHub().BroadcastToSession)
	if err := bus.EnsureIndexes(context.Background()); err != nil {
		log.Printf("Warning: failed to create ws_events index: %v", err)
	}
	bus.Start()
	defer bus.Stop()
	if cfg.Server.MultiInstance {
		wsHandler.SetPublisher(bus)
	}

	gameHandler := handlers.NewGameHandler(mongodb, wsHandler, seatService, passcodeService, cfg.Game.DefaultRules)
	gameHandler.SetAuditLogger(audit.New(mongodb.AuditLog()))

	// Set up router
	router := mux.NewRouter()
	router.Use(middleware.SecurityHeaders())

	// WebSocket routes
	router.HandleFunc("/ws/games/{sessionId}",
		rateLimiter.RateLimitHandler(middleware.WebSocketUpgradeLimit, middleware.GetClientIP, wsHandler.HandleWebSocket))

	// API routes
	api := router.PathPrefix("/api").Subrouter()
	gameHandler.Register(api, middleware.NewSeatAuth(seatService), rateLimiter)

	// API Documentation
	router.HandleFunc("/docs", handlers.ServeAPIDocs).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.URL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
