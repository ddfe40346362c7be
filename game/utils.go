package game

import "github.com/minaorangina/uno/deck"

// indexOfCard returns the index of the first card equal to target, or -1
func indexOfCard(cards []deck.Card, target deck.Card) int {
	for i, c := range cards {
		if c == target {
			return i
		}
	}
	return -1
}
