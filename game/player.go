package game

import "github.com/minaorangina/uno/deck"

// Conn is the send side of a live client connection.
// A Player refers to it but never owns it.
type Conn interface {
	ID() string
	Send(data []byte)
}

// Player occupies a seat in a Game
type Player struct {
	seat int
	name string
	hand []deck.Card
	conn Conn
}

func (p *Player) Seat() int {
	return p.seat
}

func (p *Player) Name() string {
	return p.name
}

// Hand returns a copy of the player's cards
func (p *Player) Hand() []deck.Card {
	hand := make([]deck.Card, len(p.hand))
	copy(hand, p.hand)
	return hand
}

func (p *Player) HandSize() int {
	return len(p.hand)
}

// Connected reports whether the player currently has a live connection
func (p *Player) Connected() bool {
	return p.conn != nil
}

// Conn returns the player's connection, or nil after a disconnect
func (p *Player) Conn() Conn {
	return p.conn
}

// Send delivers data to the player if they are connected
func (p *Player) Send(data []byte) {
	if p.conn == nil {
		return
	}
	p.conn.Send(data)
}

func (p *Player) holds(conn Conn) bool {
	return p.conn != nil && conn != nil && p.conn.ID() == conn.ID()
}
