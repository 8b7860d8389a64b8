package monitor

// State identifies where the loop is in its lifecycle
type State string

const (
	// StateDisconnected is the initial state, no sessions held
	StateDisconnected State = "disconnected"

	// StateConnecting is attempting login to the gateway and the database
	StateConnecting State = "connecting"

	// StatePolling is the authenticated fetch-transform-write cycle
	StatePolling State = "polling"

	// StateBackingOff waits out a delay after a failed cycle or login
	StateBackingOff State = "backing_off"

	// StateTerminated is the clean-shutdown terminal state
	StateTerminated State = "terminated"
)

func (s State) String() string {
	return string(s)
}
