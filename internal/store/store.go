package store

import (
	"context"
	"errors"

	"stackedfour-server/internal/game"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

// ErrUnavailable wraps persistence failures. A request that hits it is
// aborted; the connection that issued it stays open and may retry.
var ErrUnavailable = errors.New("store unavailable")

type Player struct {
	ID   int64
	Name string
}

// Store is the persistence boundary the session coordinator talks to. The
// read-modify-write cycle on a single game must be atomic inside the
// implementation; the coordinator never holds a lock across it.
type Store interface {
	// FindOrCreateGame resolves the player's active game: their own
	// unfinished game if one exists, otherwise the oldest waiting game
	// (seating them as black), otherwise a brand-new game with them as red.
	// Matchmaking is FIFO over a single global waiting pool.
	FindOrCreateGame(ctx context.Context, playerID int64) (*game.Game, error)

	// SaveGame persists the full board snapshot and finished flag.
	SaveGame(ctx context.Context, g *game.Game) error

	// GetOrCreatePlayer upserts a player by display name.
	GetOrCreatePlayer(ctx context.Context, name string) (*Player, error)

	GetPlayerByID(ctx context.Context, id int64) (*Player, error)
}
