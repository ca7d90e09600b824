package game

import (
	"errors"
	"fmt"
)

const (
	// GameSize is the side length of the square board.
	GameSize = 7
	// WinLength is the number of same-colour squares in a line needed to win.
	WinLength = 4
)

// ErrInvalidInput marks a contract violation at the engine boundary, such as
// a row index outside the board or an unknown insertion direction.
var ErrInvalidInput = errors.New("invalid input")

type Colour string

const (
	Red   Colour = "red"
	Black Colour = "black"
)

func (c Colour) Opponent() Colour {
	if c == Red {
		return Black
	}
	return Red
}

// Direction records which end of its row a piece was inserted from. A square
// that is part of a detected winning line has its direction overwritten to Win.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Win   Direction = "win"
)

type Square struct {
	Value     Colour    `json:"value"`
	Direction Direction `json:"direction"`
}

// Board is a row-major GameSize x GameSize grid. Empty cells are nil.
type Board [][]*Square

func NewBoard() Board {
	b := make(Board, GameSize)
	for i := range b {
		b[i] = make([]*Square, GameSize)
	}
	return b
}

// Clone deep-copies the board so callers can annotate it without mutating
// the original.
func (b Board) Clone() Board {
	clone := make(Board, len(b))
	for i, row := range b {
		clone[i] = make([]*Square, len(row))
		for j, sq := range row {
			if sq != nil {
				copied := *sq
				clone[i][j] = &copied
			}
		}
	}
	return clone
}

func (b Board) full() bool {
	for _, row := range b {
		for _, sq := range row {
			if sq == nil {
				return false
			}
		}
	}
	return true
}

// Place inserts a piece of the given colour into row at the first empty slot
// scanning from the given end: Left scans columns 0..N-1, Right scans N-1..0.
// A full row is a silent no-op, not an error; clients that wait for an
// unchanged board to come back depend on that. The returned board is always a
// fresh copy.
func Place(b Board, colour Colour, row int, dir Direction) (Board, error) {
	if row < 0 || row >= len(b) {
		return nil, fmt.Errorf("%w: row %d out of range", ErrInvalidInput, row)
	}
	if dir != Left && dir != Right {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidInput, dir)
	}

	placed := b.Clone()
	target := placed[row]
	switch dir {
	case Left:
		for i := 0; i < len(target); i++ {
			if target[i] == nil {
				target[i] = &Square{Value: colour, Direction: dir}
				return placed, nil
			}
		}
	case Right:
		for i := len(target) - 1; i >= 0; i-- {
			if target[i] == nil {
				target[i] = &Square{Value: colour, Direction: dir}
				return placed, nil
			}
		}
	}

	// Row was full: drop the move.
	return placed, nil
}

// CurrentPlayer derives whose turn it is from piece counts alone: equal counts
// mean Red moves (first-mover convention), otherwise Black. A completely full
// board has no current player and returns nil. Turn state is never stored, so
// replays and concurrent reads stay idempotent.
func CurrentPlayer(b Board) *Colour {
	if b.full() {
		return nil
	}

	var reds, blacks int
	for _, row := range b {
		for _, sq := range row {
			if sq == nil {
				continue
			}
			switch sq.Value {
			case Red:
				reds++
			case Black:
				blacks++
			}
		}
	}

	next := Red
	if reds > blacks {
		next = Black
	}
	return &next
}

type cell struct {
	row, col int
}

// DetectWinner scans every window of WinLength cells for a single-colour run:
// horizontal rows top to bottom, then vertical columns left to right, then
// down-right diagonals, then up-right anti-diagonals. The first qualifying
// window in that order is the winner; its squares have their direction
// overwritten to Win on the returned board. With no winner the input board is
// returned unchanged.
func DetectWinner(b Board) (*Colour, Board) {
	winner, line := findWinningLine(b)
	if winner == nil {
		return nil, b
	}

	marked := b.Clone()
	for _, c := range line {
		marked[c.row][c.col].Direction = Win
	}
	return winner, marked
}

func findWinningLine(b Board) (*Colour, []cell) {
	n := len(b)

	// Horizontal
	for r := 0; r < n; r++ {
		for c := 0; c <= n-WinLength; c++ {
			if colour, line := checkWindow(b, r, c, 0, 1); colour != nil {
				return colour, line
			}
		}
	}

	// Vertical
	for c := 0; c < n; c++ {
		for r := 0; r <= n-WinLength; r++ {
			if colour, line := checkWindow(b, r, c, 1, 0); colour != nil {
				return colour, line
			}
		}
	}

	// Diagonal, down-right
	for r := 0; r <= n-WinLength; r++ {
		for c := 0; c <= n-WinLength; c++ {
			if colour, line := checkWindow(b, r, c, 1, 1); colour != nil {
				return colour, line
			}
		}
	}

	// Anti-diagonal, up-right
	for r := WinLength - 1; r < n; r++ {
		for c := 0; c <= n-WinLength; c++ {
			if colour, line := checkWindow(b, r, c, -1, 1); colour != nil {
				return colour, line
			}
		}
	}

	return nil, nil
}

func checkWindow(b Board, row, col, dr, dc int) (*Colour, []cell) {
	first := b[row][col]
	if first == nil {
		return nil, nil
	}

	line := make([]cell, 0, WinLength)
	line = append(line, cell{row, col})
	for k := 1; k < WinLength; k++ {
		sq := b[row+k*dr][col+k*dc]
		if sq == nil || sq.Value != first.Value {
			return nil, nil
		}
		line = append(line, cell{row + k*dr, col + k*dc})
	}

	winner := first.Value
	return &winner, line
}
