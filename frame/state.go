package frame

type State int

const (
	StateUninitialized State = iota
	StateDeviceReady
	StatePipelineReady
	StateRecorded
	StateSubmitted
	StateCopied
	StateEncoded
	StateTornDown
)

var stateNames = []string{
	"Uninitialized",
	"DeviceReady",
	"PipelineReady",
	"Recorded",
	"Submitted",
	"Copied",
	"Encoded",
	"TornDown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}
