package protocol

// EndGame is the tagged terminal variant carried under the "end-game"
// key: a seat index, a draw marker (0.5), or one of the string reasons.
type EndGame struct {
	Kind EndGameKind
	Seat int // valid only for EndSeat
}

type EndGameKind int

const (
	EndNone EndGameKind = iota
	EndSeat             // a numeric winner seat
	EndDraw             // 0.5, mutual peace
	EndSurrender
	EndConnLost
)

// Reasons a client (or the server, synthesizing a read fault) may put
// under "end-game" instead of a winner seat.
const (
	ReasonSurrender = "surrender"
	ReasonConnLost  = "connection-lost"
)

// EndGameKey is the wire key of the terminal variant.
const EndGameKey = "end-game"

// ParseEndGame extracts the end-game variant from a tick message.
// Returns Kind == EndNone when the message carries no terminal signal.
func ParseEndGame(m Message) EndGame {
	v, ok := m[EndGameKey]
	if !ok {
		return EndGame{}
	}
	switch x := v.(type) {
	case string:
		switch x {
		case ReasonSurrender:
			return EndGame{Kind: EndSurrender}
		case ReasonConnLost:
			return EndGame{Kind: EndConnLost}
		}
	case float64:
		if x == 0.5 {
			return EndGame{Kind: EndDraw}
		}
		return EndGame{Kind: EndSeat, Seat: int(x)}
	case int:
		return EndGame{Kind: EndSeat, Seat: x}
	}
	return EndGame{}
}

// ConnLostMessage is the message a session synthesizes when an in-game
// read on a seat faults.
func ConnLostMessage() Message {
	return Message{EndGameKey: ReasonConnLost}
}

// WinnerMessage is the terminal marker broadcast to surviving seats.
func WinnerMessage(seat int) Message {
	return Message{EndGameKey: seat}
}

// DrawMessage is the terminal marker for a mutually voted peace.
func DrawMessage() Message {
	return Message{EndGameKey: 0.5}
}
