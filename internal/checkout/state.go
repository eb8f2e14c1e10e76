package checkout

//go:generate go tool stringer -type=State -trimprefix=State

type State int

const (
	StateSelectingAddress State = iota
	// StateNoAddress halts the flow until an address is created elsewhere.
	StateNoAddress
	StateValidatingPayment
	StateSubmitting
	StateConfirmed
	StateFailed
)

var transitions = map[State][]State{
	StateSelectingAddress:  {StateSelectingAddress, StateNoAddress, StateValidatingPayment, StateFailed},
	StateNoAddress:         {StateNoAddress, StateSelectingAddress, StateFailed},
	StateValidatingPayment: {StateSelectingAddress, StateSubmitting, StateFailed},
	StateSubmitting:        {StateConfirmed, StateValidatingPayment, StateFailed},
}

func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
