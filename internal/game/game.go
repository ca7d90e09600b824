package game

// Game is the persisted snapshot of one match. The store owns it; the engine
// and coordinator read a snapshot, compute a new one, and write it back. The
// first player to join holds the red seat, the second the black seat. A game
// waiting for an opponent has BlackID nil.
type Game struct {
	ID       int64
	Squares  Board
	RedID    *int64
	BlackID  *int64
	Finished bool
}

// Seats is the requester-relative framing of a game: which colour is theirs,
// which is the opponent's, and who the opponent is (nil while waiting).
type Seats struct {
	Mine       Colour
	Theirs     Colour
	OpponentID *int64
}

// Perspective maps a game onto the requesting player's point of view. Anyone
// not seated as red is framed as black, matching seat assignment order.
func Perspective(g *Game, requesterID int64) Seats {
	if g.RedID != nil && *g.RedID == requesterID {
		return Seats{Mine: Red, Theirs: Black, OpponentID: g.BlackID}
	}
	return Seats{Mine: Black, Theirs: Red, OpponentID: g.RedID}
}
