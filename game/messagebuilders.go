package game

import (
	"github.com/minaorangina/uno/deck"
	"github.com/minaorangina/uno/protocol"
)

func (g *Game) buildPlayerSummaries() []protocol.PlayerSummary {
	summaries := []protocol.PlayerSummary{}
	for _, p := range g.Players() {
		summaries = append(summaries, protocol.PlayerSummary{
			SeatIndex:   p.seat,
			DisplayName: p.name,
			HandSize:    len(p.hand),
			Connected:   p.Connected(),
		})
	}
	return summaries
}

// BuildSnapshot is the public view of the game that every seat may see
func (g *Game) BuildSnapshot() protocol.UpdatePayload {
	return protocol.UpdatePayload{
		Turn:      g.turn,
		Direction: g.direction,
		State:     g.state.String(),
		Players:   g.buildPlayerSummaries(),
	}
}

func (g *Game) BuildInitMessage(p *Player, cards []deck.Card) protocol.OutboundMessage {
	return protocol.OutboundMessage{
		Type: protocol.Init,
		Payload: protocol.InitPayload{
			UpdatePayload: g.BuildSnapshot(),
			PlayerID:      p.seat,
			Cards:         cards,
		},
	}
}

func (g *Game) BuildUpdateMessage() protocol.OutboundMessage {
	return protocol.OutboundMessage{
		Type:    protocol.Update,
		Payload: g.BuildSnapshot(),
	}
}

func BuildDrawMessage(cards []deck.Card) protocol.OutboundMessage {
	return protocol.OutboundMessage{
		Type:    protocol.Draw,
		Payload: protocol.DrawPayload{Cards: cards},
	}
}

func BuildCardMessage(card deck.Card) protocol.OutboundMessage {
	return protocol.OutboundMessage{
		Type:    protocol.Card,
		Payload: protocol.CardPayload{Card: card},
	}
}

// BuildGameOverMessage announces the winner. ok is false while nobody has won.
func (g *Game) BuildGameOverMessage() (msg protocol.OutboundMessage, ok bool) {
	winner, ok := g.Winner()
	if !ok {
		return protocol.OutboundMessage{}, false
	}
	return protocol.OutboundMessage{
		Type: protocol.GameOver,
		Payload: protocol.GameOverPayload{
			Result: protocol.Result{PlayerID: winner.seat, PlayerName: winner.name},
		},
	}, true
}

func BuildErrorMessage(err error) protocol.OutboundMessage {
	return protocol.OutboundMessage{
		Type:    protocol.Error,
		Payload: protocol.ErrorPayload{Message: err.Error()},
	}
}
