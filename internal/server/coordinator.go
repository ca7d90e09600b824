package server

import (
	"context"
	"encoding/json"
	"fmt"

	"stackedfour-server/internal/game"
	"stackedfour-server/internal/store"
)

// Coordinator drives one play request end to end: resolve the player's game
// through matchmaking, apply the move, persist the snapshot, and fan the
// personalized views out to every live connection of both participants. It
// holds no game state of its own; the store's snapshot is the only authority.
type Coordinator struct {
	store    store.Store
	registry *Registry
}

func NewCoordinator(st store.Store, registry *Registry) *Coordinator {
	return &Coordinator{store: st, registry: registry}
}

// PlayPiece handles one decoded client request for userID. With play nil it
// is a pure view request: no apply, no persist, broadcast of the unchanged
// state. Any store failure aborts this request only; the caller keeps the
// connection open and the client may retry.
func (c *Coordinator) PlayPiece(ctx context.Context, userID int64, play *PlayRequest) error {
	// Resolve. This may create a new game or seat the player into a waiting
	// one as a side effect.
	g, err := c.store.FindOrCreateGame(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve game for player %d: %w", userID, err)
	}

	// Apply and persist, only when a move was supplied and the game is live.
	if play != nil && !g.Finished {
		if cur := game.CurrentPlayer(g.Squares); cur != nil {
			placed, err := game.Place(g.Squares, *cur, play.Row, play.Direction)
			if err != nil {
				return fmt.Errorf("rejected move for player %d: %w", userID, err)
			}
			g.Squares = placed
		}

		winner, marked := game.DetectWinner(g.Squares)
		g.Squares = marked
		if winner != nil || game.CurrentPlayer(g.Squares) == nil {
			g.Finished = true
		}

		if err := c.store.SaveGame(ctx, g); err != nil {
			return fmt.Errorf("failed to persist game %d: %w", g.ID, err)
		}
	}

	return c.broadcast(ctx, g, userID)
}

// broadcast builds the two per-seat views and delivers each to its player's
// entire connection set. A waiting game only has the requester to notify.
func (c *Coordinator) broadcast(ctx context.Context, g *game.Game, requesterID int64) error {
	winner, marked := game.DetectWinner(g.Squares)

	// Nobody moves once the game is decided or the grid is full.
	var next *game.Colour
	if winner == nil {
		next = game.CurrentPlayer(marked)
	}

	seats := game.Perspective(g, requesterID)

	requester, err := c.store.GetPlayerByID(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("failed to load player %d: %w", requesterID, err)
	}

	var opponent *store.Player
	if seats.OpponentID != nil {
		opponent, err = c.store.GetPlayerByID(ctx, *seats.OpponentID)
		if err != nil {
			return fmt.Errorf("failed to load player %d: %w", *seats.OpponentID, err)
		}
	}

	opponentName := ""
	if opponent != nil {
		opponentName = opponent.Name
	}

	if err := c.deliverView(requesterID, GameView{
		Squares:       marked,
		Winner:        winner,
		CurrentPlayer: next,
		YourColour:    seats.Mine,
		YourName:      requester.Name,
		TheirName:     opponentName,
	}); err != nil {
		return err
	}

	if opponent == nil {
		return nil
	}

	return c.deliverView(opponent.ID, GameView{
		Squares:       marked,
		Winner:        winner,
		CurrentPlayer: next,
		YourColour:    seats.Theirs,
		YourName:      opponent.Name,
		TheirName:     requester.Name,
	})
}

func (c *Coordinator) deliverView(userID int64, view GameView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to serialize view for player %d: %w", userID, err)
	}
	c.registry.Deliver(userID, payload)
	return nil
}
