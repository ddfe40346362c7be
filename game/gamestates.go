package game

// State represents the lifecycle of a game
type State int

const (
	Waiting State = iota // fewer connected players than seats
	Playing
	Finished
)

var stateNames = []string{"waiting", "playing", "finished"}

func (s State) String() string {
	if s < Waiting || s > Finished {
		return ""
	}
	return stateNames[s]
}

const (
	Clockwise        = 1
	CounterClockwise = -1
)
