package session

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// ThreadCreator requests a new conversation thread from the assistant
// service.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// Registry maps each user to their current conversation thread.
// At most one thread per user; threads are created lazily, replaced on
// reset and held in memory only, so a restart starts users on fresh
// threads. Abandoned threads are not cleaned up remotely.
type Registry struct {
	creator ThreadCreator

	mu      sync.Mutex
	threads map[int64]string
}

func NewRegistry(creator ThreadCreator) *Registry {
	return &Registry{creator: creator, threads: make(map[int64]string)}
}

// GetOrCreate returns the user's thread, creating one on first contact.
// The lock is held across creation so concurrent calls for the same
// user cannot race to create two threads.
func (r *Registry) GetOrCreate(ctx context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if threadID, ok := r.threads[userID]; ok {
		return threadID, nil
	}
	threadID, err := r.creator.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	r.threads[userID] = threadID
	log.Printf("created thread for user %d: %s", userID, threadID)
	return threadID, nil
}

// Reset discards the user's current thread and replaces it with a
// brand-new one.
func (r *Registry) Reset(ctx context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threadID, err := r.creator.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	r.threads[userID] = threadID
	log.Printf("reset thread for user %d: %s", userID, threadID)
	return threadID, nil
}
