package audit

import (
	"context"
	"log"
	"net/http"
	"time"

	"chess-moves/internal/middleware"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Event types for audit logging
const (
	EventSeatIssued       = "seat_issued"
	EventPasscodeRejected = "passcode_rejected"
	EventResignation      = "resignation"
)

// AuditEvent represents a security-relevant event.
type AuditEvent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	EventType string             `bson:"eventType"`
	SessionID string             `bson:"sessionId"`
	PlayerID  string             `bson:"playerId,omitempty"`
	IP        string             `bson:"ip"`
	UserAgent string             `bson:"userAgent"`
	Details   string             `bson:"details,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// Logger writes audit events to a collection. A nil Logger drops events.
type Logger struct {
	collection *mongo.Collection
}

func New(collection *mongo.Collection) *Logger {
	return &Logger{collection: collection}
}

// NewEvent captures the request details of an event
func NewEvent(eventType, sessionID, playerID string, r *http.Request, details string) AuditEvent {
	return AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		PlayerID:  playerID,
		IP:        middleware.GetClientIP(r),
		UserAgent: r.UserAgent(),
		Details:   details,
		CreatedAt: time.Now(),
	}
}

// LogEvent writes an audit event to the database (fire-and-forget).
func (l *Logger) LogEvent(eventType, sessionID, playerID string, r *http.Request, details string) {
	if l == nil || l.collection == nil {
		return
	}
	event := NewEvent(eventType, sessionID, playerID, r, details)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.collection.InsertOne(ctx, event); err != nil {
			log.Printf("Audit log write failed: %v", err)
		}
	}()
}
