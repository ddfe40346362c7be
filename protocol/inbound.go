package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minaorangina/uno/deck"
)

var ErrMalformedMessage = errors.New("malformed message")

// InboundMessage is the envelope of every message from a client
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Intent is a decoded client request. It is implemented by JoinIntent and PlayIntent only.
type Intent interface {
	isIntent()
}

// JoinIntent asks for a seat in a game, creating the game if needed
type JoinIntent struct {
	GameID     string
	PlayerName string
}

// PlayIntent plays a card, or draws one when Card is nil
type PlayIntent struct {
	GameID   string
	PlayerID int
	Card     *deck.Card
}

func (JoinIntent) isIntent() {}
func (PlayIntent) isIntent() {}

type joinPayload struct {
	GameID     string `json:"gameId"`
	PlayerName string `json:"playerName"`
}

type playPayload struct {
	GameID   string     `json:"gameId"`
	PlayerID *int       `json:"playerId"`
	Card     *deck.Card `json:"card"`
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// Decode turns a raw client frame into an Intent.
// Every error it returns wraps ErrMalformedMessage.
func Decode(data []byte) (Intent, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, malformed("%v", err)
	}
	if len(msg.Payload) == 0 {
		return nil, malformed("missing payload")
	}

	switch NameToMsgType[msg.Type] {
	case Join:
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, malformed("join: %v", err)
		}
		if p.GameID == "" {
			return nil, malformed("join: missing gameId")
		}
		if p.PlayerName == "" {
			return nil, malformed("join: missing playerName")
		}
		return JoinIntent{GameID: p.GameID, PlayerName: p.PlayerName}, nil

	case Play:
		var p playPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, malformed("play: %v", err)
		}
		if p.GameID == "" {
			return nil, malformed("play: missing gameId")
		}
		if p.PlayerID == nil || *p.PlayerID < 0 {
			return nil, malformed("play: missing or negative playerId")
		}
		return PlayIntent{GameID: p.GameID, PlayerID: *p.PlayerID, Card: p.Card}, nil
	}

	return nil, malformed("unknown type %q", msg.Type)
}
