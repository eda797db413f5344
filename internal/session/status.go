package session

// Status is the lifecycle stage of a live session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusJoining      Status = "joining"
	StatusActive       Status = "active"
	StatusCleaning     Status = "cleaning"
	StatusClosed       Status = "closed"
)

// ExitReason names the path that asked the session to tear down.
type ExitReason string

const (
	ExitLeave        ExitReason = "leave"
	ExitNavigateBack ExitReason = "navigate_back"
	ExitUnload       ExitReason = "unload"
	ExitJoinFailed   ExitReason = "join_failed"
)

// canTransition reports whether the lifecycle allows moving from one status
// to another. Closed is terminal.
func canTransition(from, to Status) bool {
	switch to {
	case StatusJoining:
		return from == StatusInitializing
	case StatusActive:
		return from == StatusJoining
	case StatusCleaning:
		return from == StatusInitializing || from == StatusJoining || from == StatusActive
	case StatusClosed:
		return from == StatusCleaning
	default:
		return false
	}
}

// live reports whether engine events should still be applied.
func (s Status) live() bool {
	return s == StatusJoining || s == StatusActive
}
