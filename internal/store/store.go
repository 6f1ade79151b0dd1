package store

import (
	"context"
	"errors"

	"github.com/robalobadob/escaperoom/internal/game"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Store defines the persistence interface for game sessions.
// Each session is isolated under its own key; no state is shared between them.
type Store interface {
	// Create stores a new session. Returns ErrExists if the ID is taken.
	Create(ctx context.Context, s *game.Session) error

	// Get retrieves a copy of a session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*game.Session, error)

	// Update applies fn to the session with exclusive access and stores the
	// result. If fn returns an error nothing is written and the error is
	// returned unchanged. Returns a copy of the updated session.
	Update(ctx context.Context, id string, fn func(*game.Session) error) (*game.Session, error)

	// Delete removes a session. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error
}
