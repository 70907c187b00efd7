package reportstore

import (
	"context"
	"log"
)

// NewStore returns a postgres-backed store when databaseURL is set,
// otherwise an in-memory store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		log.Printf("reportstore: no database configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
