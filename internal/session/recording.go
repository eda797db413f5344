package session

// Control tokens on the recording topic.
const (
	RecordingStartToken = "start"
	RecordingStopToken  = "stop"
)

// recordingSignal turns the recording broadcast topic into a flag. The flag
// has no expiry; it holds until the opposite token arrives.
type recordingSignal struct {
	on bool
}

// apply interprets payload and reports whether the flag changed. Anything
// but the two tokens is ignored.
func (r *recordingSignal) apply(payload []byte) bool {
	var next bool
	switch string(payload) {
	case RecordingStartToken:
		next = true
	case RecordingStopToken:
		next = false
	default:
		return false
	}
	if r.on == next {
		return false
	}
	r.on = next
	return true
}
