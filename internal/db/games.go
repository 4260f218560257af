package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chess-moves/internal/models"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameConflict = errors.New("game was modified concurrently")
)

func (m *MongoDB) CreateGame(ctx context.Context, game *models.Game) error {
	res, err := m.Games().InsertOne(ctx, game)
	if err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		game.ID = id
	}
	return nil
}

func (m *MongoDB) FindGame(ctx context.Context, sessionID string) (*models.Game, error) {
	var game models.Game
	err := m.Games().FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game: %w", err)
	}
	return &game, nil
}

// UpdateGame replaces the stored game document and bumps its updatedAt. The
// replacement only applies if the stored updatedAt still equals the one the
// document was read with, so two servers cannot both apply a move.
func (m *MongoDB) UpdateGame(ctx context.Context, game *models.Game) error {
	readAt := game.UpdatedAt
	game.UpdatedAt = time.Now().Truncate(time.Millisecond)

	filter := bson.M{"sessionId": game.SessionID, "updatedAt": readAt}
	res, err := m.Games().ReplaceOne(ctx, filter, game)
	if err != nil {
		game.UpdatedAt = readAt
		return fmt.Errorf("failed to update game: %w", err)
	}
	if res.MatchedCount == 0 {
		game.UpdatedAt = readAt
		return ErrGameConflict
	}
	return nil
}

func (m *MongoDB) InsertMove(ctx context.Context, move *models.Move) error {
	if _, err := m.Moves().InsertOne(ctx, move); err != nil {
		return fmt.Errorf("failed to record move: %w", err)
	}
	return nil
}

func (m *MongoDB) ListMoves(ctx context.Context, sessionID string) ([]models.Move, error) {
	opts := options.Find().SetSort(bson.M{"moveNumber": 1})
	cursor, err := m.Moves().Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch moves: %w", err)
	}
	defer cursor.Close(ctx)

	moves := []models.Move{}
	if err := cursor.All(ctx, &moves); err != nil {
		return nil, fmt.Errorf("failed to decode moves: %w", err)
	}
	return moves, nil
}

// DeleteAbandonedGames removes unfinished games (and their moves) that have
// not been touched since before. It returns the number of games removed.
func (m *MongoDB) DeleteAbandonedGames(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{
		"status":    bson.M{"$in": []models.GameStatus{models.GameStatusWaiting, models.GameStatusActive}},
		"updatedAt": bson.M{"$lt": before},
	}

	cursor, err := m.Games().Find(ctx, filter, options.Find().SetProjection(bson.M{"sessionId": 1}))
	if err != nil {
		return 0, fmt.Errorf("failed to find abandoned games: %w", err)
	}
	var stale []struct {
		SessionID string `bson:"sessionId"`
	}
	if err := cursor.All(ctx, &stale); err != nil {
		return 0, fmt.Errorf("failed to decode abandoned games: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, len(stale))
	for i, g := range stale {
		ids[i] = g.SessionID
	}
	res, err := m.Games().DeleteMany(ctx, bson.M{"sessionId": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete abandoned games: %w", err)
	}
	if _, err := m.Moves().DeleteMany(ctx, bson.M{"sessionId": bson.M{"$in": ids}}); err != nil {
		return res.DeletedCount, fmt.Errorf("failed to delete moves of abandoned games: %w", err)
	}
	return res.DeletedCount, nil
}
