package deck

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownColor   = errors.New("unknown card color")
	ErrUnknownContent = errors.New("unknown card content")
)

// Color represents the color of a card. Wild cards have no color of their own.
type Color int

const (
	Red Color = iota
	Yellow
	Green
	Blue
	Wild
)

var colorNames = []string{"red", "yellow", "green", "blue", "wild"}

var nameToColor = map[string]Color{
	"red":    Red,
	"yellow": Yellow,
	"green":  Green,
	"blue":   Blue,
	"wild":   Wild,
}

func (c Color) String() string {
	if c < Red || c > Wild {
		return fmt.Sprintf("Color(%d)", int(c))
	}
	return colorNames[c]
}

func (c Color) MarshalJSON() ([]byte, error) {
	if c < Red || c > Wild {
		return nil, fmt.Errorf("%w: %d", ErrUnknownColor, int(c))
	}
	return json.Marshal(colorNames[c])
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	color, ok := nameToColor[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColor, name)
	}
	*c = color
	return nil
}

// Content is what is printed on a card: a number or an action.
type Content int

const (
	Zero Content = iota
	One
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Reverse
	Skip
	DrawTwo
	WildDrawFour
	WildCard
)

var contentNames = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"Rev", "Skip", "+2", "+4", "Wild",
}

var nameToContent = func() map[string]Content {
	m := make(map[string]Content, len(contentNames))
	for i, name := range contentNames {
		m[name] = Content(i)
	}
	return m
}()

func (c Content) String() string {
	if c < Zero || c > WildCard {
		return fmt.Sprintf("Content(%d)", int(c))
	}
	return contentNames[c]
}

// IsNumber reports whether the content is one of 0-9.
func (c Content) IsNumber() bool {
	return c >= Zero && c <= Nine
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c < Zero || c > WildCard {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContent, int(c))
	}
	return json.Marshal(contentNames[c])
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	content, ok := nameToContent[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownContent, name)
	}
	*c = content
	return nil
}

// Card is an immutable value. Two cards with the same color and content
// are interchangeable.
type Card struct {
	Color   Color   `json:"color"`
	Content Content `json:"content"`
}

// NewCard constructs a card, panicking on out-of-range values
func NewCard(color Color, content Content) Card {
	if color < Red || color > Wild {
		panic(fmt.Sprintf("color out of range: %d", int(color)))
	}
	if content < Zero || content > WildCard {
		panic(fmt.Sprintf("content out of range: %d", int(content)))
	}
	if (color == Wild) != (content == WildCard || content == WildDrawFour) {
		panic(fmt.Sprintf("invalid card %s %s", color, content))
	}
	return Card{Color: color, Content: content}
}

func (c Card) String() string {
	if c.Color == Wild {
		return c.Content.String()
	}
	return fmt.Sprintf("%s %s", c.Color, c.Content)
}
