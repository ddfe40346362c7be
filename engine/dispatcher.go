package engine

import (
	"errors"
	"fmt"

	"github.com/minaorangina/uno/deck"
	"github.com/minaorangina/uno/game"
	"github.com/minaorangina/uno/protocol"
	"github.com/minaorangina/uno/store"
	"go.uber.org/zap"
)

var (
	ErrNoStore         = errors.New("dispatcher requires a game store")
	ErrInvalidHandSize = errors.New("hand size must be positive")
	ErrUnknownSession  = errors.New("no game with that ID")
	ErrNotSeatOwner    = errors.New("connection does not hold that seat")
)

const DefaultHandSize = 5

type Opts struct {
	Store    store.GameStore
	HandSize int
	// RetainEmpty leaves games nobody is connected to for the idle sweep
	// instead of removing them on the last disconnect, so players can
	// reconnect to their hands.
	RetainEmpty bool
	Logger      *zap.Logger
}

// Dispatcher turns client intents into game operations and fans the
// results out to the seats of each game
type Dispatcher struct {
	store       store.GameStore
	handSize    int
	retainEmpty bool
	logger      *zap.Logger
}

func NewDispatcher(opts Opts) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.HandSize == 0 {
		opts.HandSize = DefaultHandSize
	}
	if opts.HandSize < 0 || opts.HandSize > deck.Size {
		return nil, ErrInvalidHandSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Dispatcher{
		store:       opts.Store,
		handSize:    opts.HandSize,
		retainEmpty: opts.RetainEmpty,
		logger:      opts.Logger,
	}, nil
}

// HandleMessage processes one frame from conn. Errors are reported for
// logging only: the connection stays open whatever happens.
func (d *Dispatcher) HandleMessage(conn game.Conn, data []byte) error {
	intent, err := protocol.Decode(data)
	if err != nil {
		d.logger.Debug("dropping message", zap.String("conn_id", conn.ID()), zap.Error(err))
		return err
	}

	switch intent := intent.(type) {
	case protocol.JoinIntent:
		err = d.join(conn, intent)
	case protocol.PlayIntent:
		err = d.play(conn, intent)
	default:
		err = fmt.Errorf("%w: unhandled intent %T", protocol.ErrMalformedMessage, intent)
	}

	if err != nil {
		d.logger.Info("intent rejected", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	return err
}

// HandleClose releases the seat held by conn, if any
func (d *Dispatcher) HandleClose(conn game.Conn) {
	g, ok := d.store.Disconnect(conn.ID())
	if !ok {
		return
	}

	g.Lock()
	defer g.Unlock()

	if g.Closed() {
		return
	}

	p, ok := g.Disconnect(conn)
	if !ok {
		return
	}
	d.logger.Info("player disconnected",
		zap.String("game_id", g.ID()),
		zap.Int("seat", p.Seat()),
		zap.String("conn_id", conn.ID()),
	)

	if !g.IsGameOver() {
		d.broadcast(g, g.BuildUpdateMessage())
	}
	if g.IsEmpty() && !d.retainEmpty {
		d.teardown(g)
	}
}

// acquire returns the game locked. With create set, a missing game is
// created, otherwise ErrUnknownSession is returned.
func (d *Dispatcher) acquire(gameID string, create bool) (*game.Game, error) {
	for {
		var g *game.Game
		if create {
			var err error
			if g, err = d.store.Get(gameID); err != nil {
				return nil, err
			}
		} else {
			var ok bool
			if g, ok = d.store.Find(gameID); !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSession, gameID)
			}
		}

		g.Lock()
		if !g.Closed() {
			return g, nil
		}
		g.Unlock()

		// torn down while we waited for it
		d.store.RemoveGame(g)
	}
}

func (d *Dispatcher) join(conn game.Conn, intent protocol.JoinIntent) error {
	if gameID, ok := d.store.Lookup(conn.ID()); ok && gameID != intent.GameID {
		d.HandleClose(conn)
	}

	g, err := d.acquire(intent.GameID, true)
	if err != nil {
		return err
	}
	defer g.Unlock()

	p, reconnected, err := g.AddPlayer(intent.PlayerName, conn)
	if err != nil {
		d.notify(conn, err)
		return err
	}
	d.store.Bind(conn.ID(), g.ID())

	if !reconnected {
		if _, err := g.DrawCards(p, d.handSize); err != nil {
			d.fail(g, err)
			return err
		}
	}

	d.logger.Info("player joined",
		zap.String("game_id", g.ID()),
		zap.Int("seat", p.Seat()),
		zap.String("player_name", p.Name()),
		zap.Bool("reconnected", reconnected),
	)

	d.send(p, g.BuildInitMessage(p, p.Hand()))
	d.broadcast(g, g.BuildUpdateMessage())

	return d.check(g)
}

func (d *Dispatcher) play(conn game.Conn, intent protocol.PlayIntent) error {
	g, err := d.acquire(intent.GameID, false)
	if err != nil {
		return err
	}
	defer g.Unlock()

	p, ok := g.Player(intent.PlayerID)
	if !ok {
		d.notify(conn, game.ErrUnknownPlayer)
		return game.ErrUnknownPlayer
	}
	if c := p.Conn(); c == nil || c.ID() != conn.ID() {
		d.notify(conn, ErrNotSeatOwner)
		return ErrNotSeatOwner
	}

	if intent.Card == nil {
		return d.draw(g, p)
	}
	card := *intent.Card

	if err := g.PlayCard(p, card); err != nil {
		d.notify(conn, err)
		return err
	}

	forced, err := g.Resolve(game.ApplyEffect(card))
	if err != nil {
		d.fail(g, err)
		return err
	}
	if forced != nil {
		d.send(forced.Player, game.BuildDrawMessage(forced.Cards))
	}

	d.broadcast(g, game.BuildCardMessage(card))
	g.AdvanceTurn()
	d.broadcast(g, g.BuildUpdateMessage())

	if err := d.check(g); err != nil {
		return err
	}

	if msg, over := g.BuildGameOverMessage(); over {
		d.broadcast(g, msg)
		d.logger.Info("game over",
			zap.String("game_id", g.ID()),
			zap.Int("winner_seat", p.Seat()),
			zap.String("winner_name", p.Name()),
		)
		d.teardown(g)
	}

	return nil
}

// draw handles a play without a card: the player takes one card and
// their turn ends
func (d *Dispatcher) draw(g *game.Game, p *game.Player) error {
	if err := g.CheckTurn(p); err != nil {
		d.send(p, game.BuildErrorMessage(err))
		return err
	}

	cards, err := g.DrawCards(p, 1)
	if errors.Is(err, game.ErrDeckExhausted) {
		// every card is in a hand or on top of the discard pile, so the
		// player has to play instead
		d.send(p, game.BuildErrorMessage(err))
		return err
	}
	if err != nil {
		d.fail(g, err)
		return err
	}
	d.send(p, game.BuildDrawMessage(cards))

	g.AdvanceTurn()
	d.broadcast(g, g.BuildUpdateMessage())

	return d.check(g)
}

// check tears the game down if it is no longer consistent
func (d *Dispatcher) check(g *game.Game) error {
	if err := g.CheckInvariants(); err != nil {
		d.fail(g, err)
		return err
	}
	return nil
}

// fail handles errors that can only come from a bug
func (d *Dispatcher) fail(g *game.Game, err error) {
	d.logger.Error("game is broken, tearing it down",
		zap.String("game_id", g.ID()),
		zap.Int("cards", g.CardCount()),
		zap.Error(err),
	)
	d.broadcast(g, game.BuildErrorMessage(err))
	d.teardown(g)
}

// teardown must be called with g locked
func (d *Dispatcher) teardown(g *game.Game) {
	g.Close()
	d.store.RemoveGame(g)
}

func (d *Dispatcher) notify(conn game.Conn, err error) {
	d.sendTo(conn, game.BuildErrorMessage(err))
}

func (d *Dispatcher) send(p *game.Player, msg protocol.OutboundMessage) {
	if c := p.Conn(); c != nil {
		d.sendTo(c, msg)
	}
}

func (d *Dispatcher) sendTo(conn game.Conn, msg protocol.OutboundMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		d.logger.Error("encoding message", zap.Stringer("type", msg.Type), zap.Error(err))
		return
	}
	conn.Send(data)
}

// broadcast sends msg to every connected seat
func (d *Dispatcher) broadcast(g *game.Game, msg protocol.OutboundMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		d.logger.Error("encoding message", zap.Stringer("type", msg.Type), zap.Error(err))
		return
	}
	for _, p := range g.Players() {
		p.Send(data)
	}
}
