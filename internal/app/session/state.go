package session

// State is the negotiation lifecycle of one Session.
type State int

const (
	StateIdle State = iota
	StateNegotiatingAsOfferer
	StateNegotiatingAsAnswerer
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiatingAsOfferer:
		return "negotiating-as-offerer"
	case StateNegotiatingAsAnswerer:
		return "negotiating-as-answerer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Live reports whether the session still owns its connection.
func (s State) Live() bool { return s != StateClosed }
