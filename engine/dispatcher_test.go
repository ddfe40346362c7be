package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/minaorangina/uno/deck"
	"github.com/minaorangina/uno/game"
	utils "github.com/minaorangina/uno/internal"
	"github.com/minaorangina/uno/protocol"
	"github.com/minaorangina/uno/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var (
	redDrawTwo = deck.NewCard(deck.Red, deck.DrawTwo)
	redOne     = deck.NewCard(deck.Red, deck.One)
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func frames(t *testing.T, c *utils.RecordingConn) []frame {
	t.Helper()

	fs := []frame{}
	for _, data := range c.Sent() {
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		fs = append(fs, f)
	}
	return fs
}

func frameTypes(t *testing.T, c *utils.RecordingConn) []string {
	t.Helper()

	types := []string{}
	for _, f := range frames(t, c) {
		types = append(types, f.Type)
	}
	return types
}

// lastPayload decodes the payload of the most recent frame of the given type
func lastPayload(t *testing.T, c *utils.RecordingConn, msgType string, v interface{}) {
	t.Helper()

	fs := frames(t, c)
	for i := len(fs) - 1; i >= 0; i-- {
		if fs[i].Type == msgType {
			require.NoError(t, json.Unmarshal(fs[i].Payload, v))
			return
		}
	}
	t.Fatalf("no %s frame in %v", msgType, frameTypes(t, c))
}

type testOpts struct {
	capacity    int
	handSize    int
	deck        deck.Deck
	retainEmpty bool
	logger      *zap.Logger
}

func newTestDispatcher(t *testing.T, opts testOpts) (*Dispatcher, *store.InMemoryGameStore) {
	t.Helper()

	if opts.capacity == 0 {
		opts.capacity = 2
	}
	if opts.logger == nil {
		opts.logger = zaptest.NewLogger(t)
	}

	s, err := store.NewInMemoryGameStore(store.StoreOpts{
		Logger: opts.logger,
		NewGame: func(id string) (*game.Game, error) {
			return game.NewGame(game.GameOpts{
				ID:       id,
				Capacity: opts.capacity,
				Deck:     opts.deck,
			})
		},
	})
	require.NoError(t, err)

	d, err := NewDispatcher(Opts{
		Store:       s,
		HandSize:    opts.handSize,
		RetainEmpty: opts.retainEmpty,
		Logger:      opts.logger,
	})
	require.NoError(t, err)

	return d, s
}

// stackedDeck deals hands in join order on top of an unshuffled full deck
func stackedDeck(hands ...[]deck.Card) deck.Deck {
	d := deck.Deck{}
	for _, h := range hands {
		d = append(d, h...)
	}
	return append(d, deck.New()...)
}

func joinMsg(gameID, name string) []byte {
	return []byte(fmt.Sprintf(`{"type":"join","payload":{"gameId":%q,"playerName":%q}}`, gameID, name))
}

func playMsg(gameID string, playerID int, card *deck.Card) []byte {
	if card == nil {
		return []byte(fmt.Sprintf(`{"type":"play","payload":{"gameId":%q,"playerId":%d}}`, gameID, playerID))
	}
	cardJSON, _ := json.Marshal(card)
	return []byte(fmt.Sprintf(`{"type":"play","payload":{"gameId":%q,"playerId":%d,"card":%s}}`, gameID, playerID, cardJSON))
}

func join(t *testing.T, d *Dispatcher, gameID, name string) *utils.RecordingConn {
	t.Helper()

	c := utils.NewRecordingConn(name + "-conn")
	require.NoError(t, d.HandleMessage(c, joinMsg(gameID, name)))
	return c
}

func TestNewDispatcher(t *testing.T) {
	t.Run("requires a store", func(t *testing.T) {
		_, err := NewDispatcher(Opts{})
		assert.True(t, errors.Is(err, ErrNoStore))
	})

	t.Run("hand size must fit in the deck", func(t *testing.T) {
		s, err := store.NewInMemoryGameStore(store.StoreOpts{Capacity: 2})
		require.NoError(t, err)

		_, err = NewDispatcher(Opts{Store: s, HandSize: deck.Size + 1})
		assert.True(t, errors.Is(err, ErrInvalidHandSize))

		d, err := NewDispatcher(Opts{Store: s})
		require.NoError(t, err)
		utils.AssertEqual(t, d.handSize, DefaultHandSize)
	})
}

func TestJoin(t *testing.T) {
	t.Run("two joins start the game", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{})

		a := join(t, d, "g", "Harry")
		b := join(t, d, "g", "Sally")

		utils.AssertDeepEqual(t, frameTypes(t, a), []string{"init", "update", "update"})
		utils.AssertDeepEqual(t, frameTypes(t, b), []string{"init", "update"})

		var init protocol.InitPayload
		lastPayload(t, b, "init", &init)
		utils.AssertEqual(t, init.PlayerID, 1)
		utils.AssertEqual(t, len(init.Cards), DefaultHandSize)
		utils.AssertEqual(t, init.State, "playing")

		var update protocol.UpdatePayload
		lastPayload(t, a, "update", &update)
		utils.AssertEqual(t, len(update.Players), 2)
		utils.AssertEqual(t, update.Players[1].DisplayName, "Sally")
		utils.AssertEqual(t, update.Players[1].HandSize, DefaultHandSize)

		g, ok := s.Find("g")
		require.True(t, ok)
		utils.AssertEqual(t, g.State(), game.Playing)
	})

	t.Run("full game rejects the joiner with an error", func(t *testing.T) {
		d, _ := newTestDispatcher(t, testOpts{})
		join(t, d, "g", "Harry")
		join(t, d, "g", "Sally")

		c := utils.NewRecordingConn("late")
		err := d.HandleMessage(c, joinMsg("g", "Late"))
		assert.True(t, errors.Is(err, game.ErrSessionFull))
		utils.AssertDeepEqual(t, frameTypes(t, c), []string{"error"})

		_, ok := d.store.Lookup("late")
		assert.False(t, ok)
	})

	t.Run("reconnecting restores the hand", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{capacity: 3})
		join(t, d, "g", "Harry")
		sally := join(t, d, "g", "Sally")

		var before protocol.InitPayload
		lastPayload(t, sally, "init", &before)

		t.Log("Given Sally drops out")
		d.HandleClose(sally)
		g, ok := s.Find("g")
		require.True(t, ok)
		p, ok := g.Player(1)
		require.True(t, ok)
		assert.False(t, p.Connected())

		t.Log("When someone joins the game")
		again := join(t, d, "g", "Sally")

		t.Log("Then they get Sally's old seat and cards")
		var after protocol.InitPayload
		lastPayload(t, again, "init", &after)
		utils.AssertEqual(t, after.PlayerID, 1)
		utils.AssertDeepEqual(t, after.Cards, before.Cards)
		utils.AssertEqual(t, g.CardCount(), deck.Size)
	})

	t.Run("joining another game leaves the first", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{capacity: 3})
		harry := join(t, d, "first", "Harry")
		join(t, d, "first", "Sally")

		require.NoError(t, d.HandleMessage(harry, joinMsg("second", "Harry")))

		first, ok := s.Find("first")
		require.True(t, ok)
		p, ok := first.Player(0)
		require.True(t, ok)
		assert.False(t, p.Connected())

		gameID, ok := s.Lookup(harry.ID())
		require.True(t, ok)
		utils.AssertEqual(t, gameID, "second")
	})
}

func TestPlay(t *testing.T) {
	harryHand := []deck.Card{redDrawTwo, redOne, deck.NewCard(deck.Red, deck.Two), deck.NewCard(deck.Red, deck.Three), deck.NewCard(deck.Red, deck.Four)}
	sallyHand := []deck.Card{
		deck.NewCard(deck.Blue, deck.One), deck.NewCard(deck.Blue, deck.Two), deck.NewCard(deck.Blue, deck.Three),
		deck.NewCard(deck.Blue, deck.Four), deck.NewCard(deck.Blue, deck.Five),
	}

	t.Run("draw two makes the next player draw and passes the turn", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{deck: stackedDeck(harryHand, sallyHand)})
		harry := join(t, d, "g", "Harry")
		sally := join(t, d, "g", "Sally")
		harry.Reset()
		sally.Reset()

		require.NoError(t, d.HandleMessage(harry, playMsg("g", 0, &redDrawTwo)))

		utils.AssertDeepEqual(t, frameTypes(t, harry), []string{"card", "update"})
		utils.AssertDeepEqual(t, frameTypes(t, sally), []string{"draw", "card", "update"})

		var drawn protocol.DrawPayload
		lastPayload(t, sally, "draw", &drawn)
		full := deck.New()
		utils.AssertDeepEqual(t, drawn.Cards, []deck.Card(full[:2]))

		var played protocol.CardPayload
		lastPayload(t, harry, "card", &played)
		utils.AssertEqual(t, played.Card, redDrawTwo)

		var update protocol.UpdatePayload
		lastPayload(t, sally, "update", &update)
		utils.AssertEqual(t, update.Turn, 1)
		utils.AssertEqual(t, update.Players[0].HandSize, 4)
		utils.AssertEqual(t, update.Players[1].HandSize, 7)

		g, ok := s.Find("g")
		require.True(t, ok)
		top, ok := g.TopCard()
		require.True(t, ok)
		utils.AssertEqual(t, top, redDrawTwo)
	})

	t.Run("play without a card draws one and ends the turn", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{deck: stackedDeck(harryHand, sallyHand)})
		harry := join(t, d, "g", "Harry")
		sally := join(t, d, "g", "Sally")
		harry.Reset()
		sally.Reset()

		require.NoError(t, d.HandleMessage(harry, playMsg("g", 0, nil)))

		utils.AssertDeepEqual(t, frameTypes(t, harry), []string{"draw", "update"})
		utils.AssertDeepEqual(t, frameTypes(t, sally), []string{"update"})

		g, ok := s.Find("g")
		require.True(t, ok)
		p, _ := g.Player(0)
		utils.AssertEqual(t, p.HandSize(), 6)
		utils.AssertEqual(t, g.Turn(), 1)
	})

	t.Run("rejected plays change nothing", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{deck: stackedDeck(harryHand, sallyHand)})
		harry := join(t, d, "g", "Harry")
		sally := join(t, d, "g", "Sally")
		harry.Reset()
		sally.Reset()

		cases := []struct {
			name string
			conn *utils.RecordingConn
			data []byte
			want error
		}{
			{"out of turn", sally, playMsg("g", 1, &sallyHand[0]), game.ErrNotYourTurn},
			{"out of turn draw", sally, playMsg("g", 1, nil), game.ErrNotYourTurn},
			{"someone else's seat", sally, playMsg("g", 0, &redOne), ErrNotSeatOwner},
			{"empty seat", harry, playMsg("g", 5, &redOne), game.ErrUnknownPlayer},
			{"card not held", harry, playMsg("g", 0, &sallyHand[0]), game.ErrCardNotHeld},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				c.conn.Reset()
				err := d.HandleMessage(c.conn, c.data)
				assert.True(t, errors.Is(err, c.want), "got %v", err)
				utils.AssertDeepEqual(t, frameTypes(t, c.conn), []string{"error"})
			})
		}

		g, ok := s.Find("g")
		require.True(t, ok)
		utils.AssertEqual(t, g.Turn(), 0)
		p, _ := g.Player(0)
		utils.AssertDeepEqual(t, p.Hand(), harryHand)
	})

	t.Run("unknown game is ignored", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{})
		c := utils.NewRecordingConn("c")

		err := d.HandleMessage(c, playMsg("nope", 0, &redOne))
		assert.True(t, errors.Is(err, ErrUnknownSession))
		assert.Empty(t, c.Sent())
		utils.AssertEqual(t, s.Len(), 0)
	})

	t.Run("winning ends and removes the game", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{
			handSize: 1,
			deck:     stackedDeck([]deck.Card{redOne}, []deck.Card{sallyHand[0]}),
		})
		harry := join(t, d, "g", "Harry")
		sally := join(t, d, "g", "Sally")
		harry.Reset()
		sally.Reset()

		require.NoError(t, d.HandleMessage(harry, playMsg("g", 0, &redOne)))

		utils.AssertDeepEqual(t, frameTypes(t, sally), []string{"card", "update", "gameover"})

		var over protocol.GameOverPayload
		lastPayload(t, sally, "gameover", &over)
		utils.AssertEqual(t, over.Result, protocol.Result{PlayerID: 0, PlayerName: "Harry"})

		_, ok := s.Find("g")
		assert.False(t, ok)

		t.Log("When the old game id is used again")
		err := d.HandleMessage(sally, playMsg("g", 1, &sallyHand[0]))
		assert.True(t, errors.Is(err, ErrUnknownSession))

		newcomer := join(t, d, "g", "Newcomer")

		t.Log("Then it is a brand new game")
		var init protocol.InitPayload
		lastPayload(t, newcomer, "init", &init)
		utils.AssertEqual(t, init.PlayerID, 0)
		utils.AssertEqual(t, init.State, "waiting")
		utils.AssertEqual(t, len(init.Players), 1)
	})
}

func TestMalformedMessages(t *testing.T) {
	d, s := newTestDispatcher(t, testOpts{})
	harry := join(t, d, "g", "Harry")
	harry.Reset()

	for _, data := range []string{
		`not json`,
		`{"type":"shout","payload":{}}`,
		`{"type":"play","payload":{"gameId":"g","playerId":0,"card":{"color":"pink","content":"1"}}}`,
	} {
		err := d.HandleMessage(harry, []byte(data))
		assert.True(t, errors.Is(err, protocol.ErrMalformedMessage), "%s: got %v", data, err)
	}

	assert.Empty(t, harry.Sent())
	g, ok := s.Find("g")
	require.True(t, ok)
	p, _ := g.Player(0)
	utils.AssertEqual(t, p.HandSize(), DefaultHandSize)
}

func TestHandleClose(t *testing.T) {
	t.Run("remaining players get an update", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{})
		harry := join(t, d, "g", "Harry")
		sally := join(t, d, "g", "Sally")
		harry.Reset()

		d.HandleClose(sally)

		utils.AssertDeepEqual(t, frameTypes(t, harry), []string{"update"})
		var update protocol.UpdatePayload
		lastPayload(t, harry, "update", &update)
		utils.AssertEqual(t, update.State, "waiting")
		assert.False(t, update.Players[1].Connected)

		_, ok := s.Find("g")
		utils.AssertTrue(t, ok)
	})

	t.Run("last one out removes the game", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{})
		harry := join(t, d, "g", "Harry")

		d.HandleClose(harry)

		utils.AssertEqual(t, s.Len(), 0)
	})

	t.Run("empty games can be retained for the sweeper", func(t *testing.T) {
		d, s := newTestDispatcher(t, testOpts{retainEmpty: true})
		harry := join(t, d, "g", "Harry")

		d.HandleClose(harry)

		g, ok := s.Find("g")
		require.True(t, ok)
		utils.AssertTrue(t, g.IsEmpty())
	})

	t.Run("closing twice or without joining is harmless", func(t *testing.T) {
		d, _ := newTestDispatcher(t, testOpts{})
		harry := join(t, d, "g", "Harry")

		d.HandleClose(harry)
		d.HandleClose(harry)
		d.HandleClose(utils.NewRecordingConn("stranger"))
	})
}

func TestBrokenGamesAreTornDown(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tiny := deck.Deck{redOne, redDrawTwo, deck.NewCard(deck.Blue, deck.Nine)}
	d, s := newTestDispatcher(t, testOpts{handSize: 2, deck: tiny, logger: zap.New(core)})

	harry := join(t, d, "g", "Harry")
	harry.Reset()

	sally := utils.NewRecordingConn("sally")
	err := d.HandleMessage(sally, joinMsg("g", "Sally"))
	assert.True(t, errors.Is(err, game.ErrDeckExhausted))

	utils.AssertEqual(t, s.Len(), 0)
	utils.AssertEqual(t, logs.FilterMessage("game is broken, tearing it down").Len(), 1)
	utils.AssertDeepEqual(t, frameTypes(t, harry), []string{"error"})
}

func TestDrawFromEmptyPile(t *testing.T) {
	tiny := deck.Deck{redOne, redDrawTwo, deck.NewCard(deck.Blue, deck.Nine)}
	d, s := newTestDispatcher(t, testOpts{handSize: 1, deck: tiny})

	harry := join(t, d, "g", "Harry")
	sally := join(t, d, "g", "Sally")
	require.NoError(t, d.HandleMessage(harry, playMsg("g", 0, nil)))
	sally.Reset()

	t.Log("When Sally draws with nothing left to draw")
	err := d.HandleMessage(sally, playMsg("g", 1, nil))

	t.Log("Then her draw is refused and the game carries on")
	assert.True(t, errors.Is(err, game.ErrDeckExhausted))
	utils.AssertDeepEqual(t, frameTypes(t, sally), []string{"error"})

	g, ok := s.Find("g")
	require.True(t, ok)
	utils.AssertEqual(t, g.Turn(), 1)
	utils.AssertEqual(t, g.State(), game.Playing)
	utils.AssertNoError(t, g.CheckInvariants())
}

func TestConcurrentPlays(t *testing.T) {
	const (
		seats   = 3
		intents = 200
	)

	d, s := newTestDispatcher(t, testOpts{capacity: seats})

	conns := make([]*utils.RecordingConn, seats)
	for i := range conns {
		conns[i] = join(t, d, "g", fmt.Sprintf("player-%d", i))
	}
	g, ok := s.Find("g")
	require.True(t, ok)

	var wg sync.WaitGroup
	for seat, c := range conns {
		wg.Add(1)
		go func(seat int, c *utils.RecordingConn) {
			defer wg.Done()

			for i := 0; i < intents; i++ {
				var card *deck.Card
				if i%2 == 0 {
					g.Lock()
					if p, ok := g.Player(seat); ok {
						if hand := p.Hand(); len(hand) > 0 {
							card = &hand[0]
						}
					}
					g.Unlock()
				}
				// out of turn and finished-game rejections are expected
				_ = d.HandleMessage(c, playMsg("g", seat, card))
			}
		}(seat, c)
	}
	wg.Wait()

	g.Lock()
	defer g.Unlock()
	utils.AssertNoError(t, g.CheckInvariants())
	utils.AssertEqual(t, g.CardCount(), deck.Size)
}
