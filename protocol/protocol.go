package protocol

import (
	"encoding/json"
	"fmt"
)

// MsgType identifies the kind of a message on the wire
type MsgType int

const (
	Unknown MsgType = iota
	// inbound
	Join
	Play
	// outbound
	Init
	Update
	Draw
	Card
	GameOver
	Error
)

var MsgTypeNames = map[MsgType]string{
	Unknown:  "unknown",
	Join:     "join",
	Play:     "play",
	Init:     "init",
	Update:   "update",
	Draw:     "draw",
	Card:     "card",
	GameOver: "gameover",
	Error:    "error",
}

var NameToMsgType = map[string]MsgType{
	"join":     Join,
	"play":     Play,
	"init":     Init,
	"update":   Update,
	"draw":     Draw,
	"card":     Card,
	"gameover": GameOver,
	"error":    Error,
}

func (t MsgType) String() string {
	if name, ok := MsgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MsgType(%d)", int(t))
}

func (t MsgType) MarshalJSON() ([]byte, error) {
	name, ok := MsgTypeNames[t]
	if !ok || t == Unknown {
		return nil, fmt.Errorf("cannot encode message type %d", int(t))
	}
	return json.Marshal(name)
}

func (t *MsgType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*t = NameToMsgType[name]
	return nil
}
