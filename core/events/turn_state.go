package events

const KindTurnComplete Kind = "turn_state.completed"

// TurnComplete closes the current turn; pending transcript text is
// committed when it arrives.
type TurnComplete struct {
	Base
}

func NewTurnComplete() TurnComplete {
	return TurnComplete{Base: newBase(KindTurnComplete)}
}
