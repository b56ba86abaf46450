package bridge

// State names the connection lifecycle phases.
//
//	Idle → Connecting → Open → Closing → Idle        (explicit disconnect)
//	                      └──→ Reconnecting → Connecting ...  (unexpected drop)
type State int

const (
	// StateIdle means no session is bound and no connection exists.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the push channel is live.
	StateOpen
	// StateClosing means an explicit teardown is running.
	StateClosing
	// StateReconnecting means the connection dropped unexpectedly and
	// a retry is scheduled for the still-bound session.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}
