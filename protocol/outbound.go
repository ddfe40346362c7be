package protocol

import (
	"encoding/json"

	"github.com/minaorangina/uno/deck"
)

// OutboundMessage is a message from the server to a client
type OutboundMessage struct {
	Type    MsgType     `json:"type"`
	Payload interface{} `json:"payload"`
}

// PlayerSummary is the public view of a seat
type PlayerSummary struct {
	SeatIndex   int    `json:"seatIndex"`
	DisplayName string `json:"displayName"`
	HandSize    int    `json:"handSize"`
	Connected   bool   `json:"connected"`
}

type UpdatePayload struct {
	Turn      int             `json:"turn"`
	Direction int             `json:"direction"`
	State     string          `json:"state"`
	Players   []PlayerSummary `json:"players"`
}

// InitPayload is sent once to a joining player along with their own hand
type InitPayload struct {
	UpdatePayload
	PlayerID int         `json:"playerId"`
	Cards    []deck.Card `json:"cards"`
}

type DrawPayload struct {
	Cards []deck.Card `json:"cards"`
}

type CardPayload struct {
	Card deck.Card `json:"card"`
}

type Result struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type GameOverPayload struct {
	Result Result `json:"result"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode serialises an outbound message
func Encode(msg OutboundMessage) ([]byte, error) {
	return json.Marshal(msg)
}
