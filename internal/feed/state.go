package feed

// State describes the connection lifecycle of the data feed.
type State int32

const (
	// StateDisconnected means no connection exists and none is scheduled.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the feed is connected and delivering frames.
	StateOpen
	// StateReconnecting means the feed dropped and a retry is scheduled.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
