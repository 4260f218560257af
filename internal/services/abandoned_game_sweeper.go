package services

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

const sweepLockName = "abandoned_game_sweeper"

// SweepStore is implemented by *db.MongoDB
type SweepStore interface {
	TryAcquireLock(ctx context.Context, name, holder string, ttl time.Duration) bool
	ReleaseLock(ctx context.Context, name string)
	DeleteAbandonedGames(ctx context.Context, before time.Time) (int64, error)
}

// AbandonedGameSweeper periodically deletes games that are still waiting for
// an opponent or still in progress but have not been touched for a while.
type AbandonedGameSweeper struct {
	store          SweepStore
	stopCh         chan struct{}
	wg             sync.WaitGroup
	interval       time.Duration
	abandonedAfter time.Duration
	holder         string
	now            func() time.Time
}

// NewAbandonedGameSweeper creates a sweeper removing games idle for longer
// than abandonedAfter.
func NewAbandonedGameSweeper(store SweepStore, abandonedAfter time.Duration) *AbandonedGameSweeper {
	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("Failed to get hostname: %v", err)
		hostname = "unknown"
	}
	return &AbandonedGameSweeper{
		store:          store,
		stopCh:         make(chan struct{}),
		interval:       5 * time.Minute,
		abandonedAfter: abandonedAfter,
		holder:         hostname,
		now:            time.Now,
	}
}

// Start begins the periodic sweep loop in a background goroutine.
func (s *AbandonedGameSweeper) Start() {
	s.wg.Add(1)
	go s.runLoop()
	log.Printf("Abandoned game sweeper started (interval: %s, threshold: %s)", s.interval, s.abandonedAfter)
}

// Stop signals the sweep loop to exit and waits for a running sweep to
// finish, so the database can be closed afterwards.
func (s *AbandonedGameSweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Println("Abandoned game sweeper stopped")
}

func (s *AbandonedGameSweeper) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			s.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce performs a single sweep. It returns the number of deleted games,
// which is zero when another server holds the sweep lock.
func (s *AbandonedGameSweeper) RunOnce(ctx context.Context) (int64, error) {
	if !s.store.TryAcquireLock(ctx, sweepLockName, s.holder, 5*time.Minute) {
		return 0, nil // Another server is sweeping
	}
	defer s.store.ReleaseLock(ctx, sweepLockName)

	deleted, err := s.store.DeleteAbandonedGames(ctx, s.now().Add(-s.abandonedAfter))
	if err != nil {
		log.Printf("Abandoned game sweeper: %v", err)
		return deleted, err
	}
	if deleted > 0 {
		log.Printf("Abandoned game sweeper: deleted %d game(s)", deleted)
	}
	return deleted, nil
}
