package session

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateListening    State = "LISTENING"
	StateSpeaking     State = "SPEAKING"
)

func (s State) String() string { return string(s) }

// IsActive reports whether a connection exists or is being opened.
func (s State) IsActive() bool { return s != StateDisconnected && s != "" }
