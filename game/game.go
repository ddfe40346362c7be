package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/minaorangina/uno/deck"
)

var (
	ErrTooFewSeats       = errors.New("minimum of 2 seats required")
	ErrTooManySeats      = errors.New("maximum of 10 seats allowed")
	ErrSessionFull       = errors.New("game is full")
	ErrAlreadySeated     = errors.New("connection already holds a seat")
	ErrCardNotHeld       = errors.New("card is not in the player's hand")
	ErrDeckExhausted     = errors.New("not enough cards left to draw")
	ErrUnknownPlayer     = errors.New("no player in that seat")
	ErrNotYourTurn       = errors.New("it is not this player's turn")
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrGameOver          = errors.New("game is already over")
	ErrInvariantViolated = errors.New("game invariant violated")
)

const (
	minSeats = 2
	maxSeats = 10
)

// Game is a single session: its seats, the two card piles and whose turn it is.
//
// Game is not safe for concurrent use on its own. Callers serialise every
// sequence of operations on one game with Lock and Unlock.
type Game struct {
	mu sync.Mutex

	id         string
	seats      []*Player
	turn       int
	direction  int
	drawPile   deck.Deck
	discard    []deck.Card
	state      State
	winner     *Player
	totalCards int
	closed     bool

	rand       *rand.Rand
	now        func() time.Time
	lastActive time.Time
}

type GameOpts struct {
	ID       string
	Capacity int
	// Deck is used as the draw pile as given. A fresh shuffled deck is used when nil.
	Deck deck.Deck
	Rand *rand.Rand
	Now  func() time.Time
}

// ValidateCapacity checks the number of seats a game may be created with
func ValidateCapacity(capacity int) error {
	if capacity < minSeats {
		return ErrTooFewSeats
	}
	if capacity > maxSeats {
		return ErrTooManySeats
	}
	return nil
}

// NewGame constructs an empty game waiting for players
func NewGame(opts GameOpts) (*Game, error) {
	if err := ValidateCapacity(opts.Capacity); err != nil {
		return nil, err
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	drawPile := opts.Deck
	if drawPile == nil {
		drawPile = deck.New()
		drawPile.Shuffle(opts.Rand)
	} else {
		drawPile = append(deck.Deck{}, drawPile...)
	}

	g := &Game{
		id:         opts.ID,
		seats:      make([]*Player, opts.Capacity),
		direction:  Clockwise,
		drawPile:   drawPile,
		discard:    []deck.Card{},
		state:      Waiting,
		totalCards: len(drawPile),
		rand:       opts.Rand,
		now:        opts.Now,
	}
	g.lastActive = g.now()

	return g, nil
}

func (g *Game) Lock()   { g.mu.Lock() }
func (g *Game) Unlock() { g.mu.Unlock() }

func (g *Game) ID() string        { return g.id }
func (g *Game) Capacity() int     { return len(g.seats) }
func (g *Game) Turn() int         { return g.turn }
func (g *Game) Direction() int    { return g.direction }
func (g *Game) State() State      { return g.state }
func (g *Game) DrawPileSize() int { return len(g.drawPile) }

// Discard returns a copy of the played cards, most recent last
func (g *Game) Discard() []deck.Card {
	discard := make([]deck.Card, len(g.discard))
	copy(discard, g.discard)
	return discard
}

// TopCard returns the most recently played card
func (g *Game) TopCard() (deck.Card, bool) {
	if len(g.discard) == 0 {
		return deck.Card{}, false
	}
	return g.discard[len(g.discard)-1], true
}

// Player returns the player in the given seat
func (g *Game) Player(seat int) (*Player, bool) {
	if seat < 0 || seat >= len(g.seats) || g.seats[seat] == nil {
		return nil, false
	}
	return g.seats[seat], true
}

// Players returns every seated player in seat order
func (g *Game) Players() []*Player {
	ps := []*Player{}
	for _, p := range g.seats {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return ps
}

// Close marks the game as torn down. Handlers that obtained the game before
// it was removed from the store check Closed after locking.
func (g *Game) Close() {
	g.closed = true
}

func (g *Game) Closed() bool {
	return g.closed
}

// LastActive is the time of the most recent change to the game
func (g *Game) LastActive() time.Time {
	return g.lastActive
}

func (g *Game) touch() {
	g.lastActive = g.now()
}

func (g *Game) numConnected() int {
	n := 0
	for _, p := range g.seats {
		if p != nil && p.Connected() {
			n++
		}
	}
	return n
}

// IsFull reports whether every seat has a connected player
func (g *Game) IsFull() bool {
	return g.numConnected() == len(g.seats)
}

// IsEmpty reports whether no seat has a connected player
func (g *Game) IsEmpty() bool {
	return g.numConnected() == 0
}

// FindEmptySeat returns the lowest seat a new joiner can take: one never
// taken, or one whose player has disconnected.
func (g *Game) FindEmptySeat() (int, bool) {
	for i, p := range g.seats {
		if p == nil || !p.Connected() {
			return i, true
		}
	}
	return -1, false
}

// AddPlayer seats a player in the lowest empty seat. When the seat belonged
// to a disconnected player, the joiner takes over their hand and reconnected
// is true if that hand has cards in it.
func (g *Game) AddPlayer(name string, conn Conn) (player *Player, reconnected bool, err error) {
	if g.state == Finished {
		return nil, false, ErrGameOver
	}
	for _, p := range g.seats {
		if p != nil && p.holds(conn) {
			return nil, false, ErrAlreadySeated
		}
	}

	seat, ok := g.FindEmptySeat()
	if !ok {
		return nil, false, ErrSessionFull
	}

	p := g.seats[seat]
	if p == nil {
		p = &Player{seat: seat, hand: []deck.Card{}}
		g.seats[seat] = p
	} else {
		reconnected = len(p.hand) > 0
	}
	p.name = name
	p.conn = conn

	g.recomputeState()
	g.touch()

	return p, reconnected, nil
}

// Disconnect clears the connection of whichever player holds conn.
// The player keeps their seat and hand.
func (g *Game) Disconnect(conn Conn) (*Player, bool) {
	for _, p := range g.seats {
		if p != nil && p.holds(conn) {
			p.conn = nil
			g.recomputeState()
			g.touch()
			return p, true
		}
	}
	return nil, false
}

func (g *Game) recomputeState() {
	if g.state == Finished {
		return
	}
	if !g.IsFull() {
		g.state = Waiting
		return
	}
	g.state = Playing
	if g.seats[g.turn] == nil {
		g.AdvanceTurn()
	}
}

func (g *Game) owns(p *Player) bool {
	return p != nil && p.seat >= 0 && p.seat < len(g.seats) && g.seats[p.seat] == p
}

// DrawCards moves n cards from the top of the draw pile into the player's hand.
// If the draw pile runs short, every played card except the top one is
// shuffled back underneath it first.
func (g *Game) DrawCards(p *Player, n int) ([]deck.Card, error) {
	if !g.owns(p) {
		return nil, ErrUnknownPlayer
	}
	if n <= 0 {
		return []deck.Card{}, nil
	}

	if len(g.drawPile) < n {
		recyclable := len(g.discard) - 1
		if recyclable < 0 {
			recyclable = 0
		}
		if len(g.drawPile)+recyclable < n {
			return nil, fmt.Errorf("%w: want %d, have %d", ErrDeckExhausted, n, len(g.drawPile)+recyclable)
		}
		g.replenish()
	}

	cards := g.drawPile.Deal(n)
	p.hand = append(p.hand, cards...)
	g.touch()

	return cards, nil
}

func (g *Game) replenish() {
	if len(g.discard) < 2 {
		return
	}
	top := g.discard[len(g.discard)-1]
	recycled := deck.Deck(append([]deck.Card{}, g.discard[:len(g.discard)-1]...))
	recycled.Shuffle(g.rand)

	g.drawPile = append(g.drawPile, recycled...)
	g.discard = []deck.Card{top}
}

// CheckTurn returns an error unless p may act now
func (g *Game) CheckTurn(p *Player) error {
	if !g.owns(p) {
		return ErrUnknownPlayer
	}
	if g.state == Finished {
		return ErrGameOver
	}
	if g.state != Playing {
		return ErrGameNotInProgress
	}
	if g.turn != p.seat {
		return ErrNotYourTurn
	}
	return nil
}

// PlayCard moves card from the player's hand onto the discard pile.
// It neither applies the card's effect nor moves the turn on.
func (g *Game) PlayCard(p *Player, card deck.Card) error {
	if err := g.CheckTurn(p); err != nil {
		return err
	}

	idx := indexOfCard(p.hand, card)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrCardNotHeld, card)
	}

	p.hand = append(p.hand[:idx], p.hand[idx+1:]...)
	g.discard = append(g.discard, card)

	if len(p.hand) == 0 {
		g.state = Finished
		g.winner = p
	}
	g.touch()

	return nil
}

// NextSeat returns the seat the turn would move to, skipping seats nobody
// has ever taken. Disconnected players keep their place in the rotation.
func (g *Game) NextSeat() (int, bool) {
	n := len(g.seats)
	for step := 1; step <= n; step++ {
		idx := ((g.turn+g.direction*step)%n + n) % n
		if g.seats[idx] != nil {
			return idx, true
		}
	}
	return g.turn, false
}

// NextPlayer returns the player whose turn is next
func (g *Game) NextPlayer() (*Player, bool) {
	seat, ok := g.NextSeat()
	if !ok {
		return nil, false
	}
	return g.seats[seat], true
}

// AdvanceTurn moves the turn to the next seated player in the current direction
func (g *Game) AdvanceTurn() {
	if seat, ok := g.NextSeat(); ok {
		g.turn = seat
	}
}

// Reverse flips the direction of play
func (g *Game) Reverse() {
	g.direction = -g.direction
}

// IsGameOver reports whether a player has emptied their hand
func (g *Game) IsGameOver() bool {
	return g.state == Finished
}

// Winner returns the player who emptied their hand first
func (g *Game) Winner() (*Player, bool) {
	return g.winner, g.winner != nil
}

// CardCount is the number of cards across the draw pile, the discard pile and every hand
func (g *Game) CardCount() int {
	n := len(g.drawPile) + len(g.discard)
	for _, p := range g.seats {
		if p != nil {
			n += len(p.hand)
		}
	}
	return n
}

// CheckInvariants reports a broken game. Any error here is a bug.
func (g *Game) CheckInvariants() error {
	if got := g.CardCount(); got != g.totalCards {
		return fmt.Errorf("%w: %d cards in play, want %d", ErrInvariantViolated, got, g.totalCards)
	}
	if g.direction != Clockwise && g.direction != CounterClockwise {
		return fmt.Errorf("%w: direction %d", ErrInvariantViolated, g.direction)
	}
	if g.state == Playing && g.seats[g.turn] == nil {
		return fmt.Errorf("%w: turn on empty seat %d", ErrInvariantViolated, g.turn)
	}
	return nil
}
