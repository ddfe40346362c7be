package deck

import (
	"math/rand"
)

const (
	numWildCards = 4
	// Size is the number of cards in a full deck
	Size = 108
)

var actions = []Content{Skip, Reverse, DrawTwo}

// Deck represents a pile of cards. The front of the slice is the top.
type Deck []Card

// New creates a full, unshuffled deck of cards
func New() Deck {
	cards := make(Deck, 0, Size)
	for _, color := range []Color{Red, Yellow, Green, Blue} {
		cards = append(cards, NewCard(color, Zero))
		for n := One; n <= Nine; n++ {
			cards = append(cards, NewCard(color, n), NewCard(color, n))
		}
		for _, a := range actions {
			cards = append(cards, NewCard(color, a), NewCard(color, a))
		}
	}
	for i := 0; i < numWildCards; i++ {
		cards = append(cards, NewCard(Wild, WildCard), NewCard(Wild, WildDrawFour))
	}
	return cards
}

// Shuffle shuffles the deck of cards using r
func (d Deck) Shuffle(r *rand.Rand) {
	r.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})
}

// Deal removes n cards from the top of the deck.
// It returns nil if the deck holds fewer than n cards.
func (d *Deck) Deal(n int) []Card {
	if n < 0 || n > len(*d) {
		return nil
	}
	dealt := make([]Card, n)
	copy(dealt, (*d)[:n])
	*d = (*d)[n:]
	return dealt
}
