package proto

// Status bytes. Every response starts with one of these.
const (
	StatusFailure byte = 0x00
	StatusSuccess byte = 0x01

	// Ack is sent by the server right after a PUT request line is accepted.
	Ack byte = StatusSuccess
)

// Fixed failure messages.
const (
	MsgInvalidArgument = "Error: Invalid argument"
)

// StatusName is used in logs.
func StatusName(st byte) string {
	switch st {
	case StatusSuccess:
		return "OK"
	case StatusFailure:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}
