package server

import (
	"stackedfour-server/internal/game"
)

// ClientRequest is one inbound text frame. A nil Play asks for the current
// view without moving. The literal keepalives "ping" / "ping\n" never reach
// JSON decoding.
type ClientRequest struct {
	Play *PlayRequest `json:"play"`
}

type PlayRequest struct {
	Row       int            `json:"row"`
	Direction game.Direction `json:"direction"`
}

// GameView is the personalized outbound frame. Board, winner and current
// player are identical for both participants; only the colour and name
// framing differs per recipient.
type GameView struct {
	Squares       game.Board   `json:"squares"`
	Winner        *game.Colour `json:"winner"`
	CurrentPlayer *game.Colour `json:"current_player"`
	YourColour    game.Colour  `json:"your_colour"`
	YourName      string       `json:"your_name"`
	TheirName     string       `json:"their_name"`
}

type RegisterRequest struct {
	Username string `json:"username"`
}

// RegisterResponse carries the duplex endpoint with a fresh session token
// appended.
type RegisterResponse struct {
	URL string `json:"url"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
