package db

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TryAcquireLock takes the named lock for ttl unless another holder owns an
// unexpired one. Several servers may share a database, so periodic jobs use
// this to run on only one of them.
func (m *MongoDB) TryAcquireLock(ctx context.Context, name, holder string, ttl time.Duration) bool {
	now := time.Now()

	filter := bson.M{
		"_id": name,
		"$or": []bson.M{
			{"lockedUntil": bson.M{"$exists": false}},
			{"lockedUntil": bson.M{"$lt": now}},
		},
	}

	update := bson.M{
		"$set": bson.M{
			"lockedUntil": now.Add(ttl),
			"lockedBy":    holder,
			"lockedAt":    now,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	// a held lock makes the upsert collide on _id
	return m.CleanupLocks().FindOneAndUpdate(ctx, filter, update, opts).Err() == nil
}

func (m *MongoDB) ReleaseLock(ctx context.Context, name string) {
	_, err := m.CleanupLocks().UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"lockedUntil": time.Now()}},
	)
	if err != nil {
		log.Printf("Failed to release lock %s: %v", name, err)
	}
}
