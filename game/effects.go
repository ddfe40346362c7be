package game

import "github.com/minaorangina/uno/deck"

// Effect describes what a card does beyond landing on the discard pile
type Effect struct {
	Reverse bool
	Skip    bool
	// Draw is the number of cards the next player is made to draw
	Draw int
}

// ApplyEffect returns the effect of playing card
func ApplyEffect(card deck.Card) Effect {
	switch card.Content {
	case deck.Reverse:
		return Effect{Reverse: true}
	case deck.Skip:
		return Effect{Skip: true}
	case deck.DrawTwo:
		return Effect{Draw: 2}
	case deck.WildDrawFour:
		return Effect{Draw: 4}
	}
	return Effect{}
}

// ForcedDraw is the result of an effect that made another player draw
type ForcedDraw struct {
	Player *Player
	Cards  []deck.Card
}

// Resolve carries out an effect on the game. The normal turn advance that
// follows every play is left to the caller, so a Skip ends up moving the
// turn twice and a draw card once.
func (g *Game) Resolve(e Effect) (*ForcedDraw, error) {
	if e.Reverse {
		g.Reverse()
	}

	var forced *ForcedDraw
	if e.Draw > 0 {
		// next player relative to the turn before it moves
		target, ok := g.NextPlayer()
		if ok {
			cards, err := g.DrawCards(target, e.Draw)
			if err != nil {
				return nil, err
			}
			forced = &ForcedDraw{Player: target, Cards: cards}
		}
	}

	if e.Skip {
		g.AdvanceTurn()
	}
	g.touch()

	return forced, nil
}
