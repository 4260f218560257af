package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"chess-moves/internal/config"
	"chess-moves/internal/db"
)

func main() {
	abandoned := flag.Bool("abandoned", false, "Only delete games idle for longer than game.abandonAfterMinutes")
	flag.Parse()

	// Load config
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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

	ctx := context.Background()

	if *abandoned {
		before := time.Now().Add(-time.Duration(cfg.Game.AbandonAfterMinutes) * time.Minute)
		deleted, err := mongodb.DeleteAbandonedGames(ctx, before)
		if err != nil {
			log.Fatalf("Failed to delete abandoned games: %v", err)
		}
		fmt.Printf("Deleted %d abandoned games\n", deleted)
		return
	}

	// Delete all games
	gamesResult, err := mongodb.Games().DeleteMany(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to delete games: %v", err)
	}
	fmt.Printf("Deleted %d games\n", gamesResult.DeletedCount)

	// Delete all moves
	movesResult, err := mongodb.Moves().DeleteMany(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to delete moves: %v", err)
	}
	fmt.Printf("Deleted %d moves\n", movesResult.DeletedCount)

	fmt.Println("Database cleared successfully")
}
