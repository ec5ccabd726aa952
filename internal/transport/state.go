package transport

import "fmt"

// TransmissionState is the handshake state of one endpoint.
type TransmissionState uint8

const (
	StateIdle TransmissionState = iota
	StateRTS
	StateSendData
	StateScratchpad
)

func (s TransmissionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRTS:
		return "RTS"
	case StateSendData:
		return "SendData"
	case StateScratchpad:
		return "Scratchpad"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// event is an input to the transition table.
type event uint8

const (
	evEnq event = iota + 1
	evScratchPending
	evCTS
	evAckMore
	evAckDone
	evRetry
	evExhausted
	evNothingToSend
	evScratchDone
	evScratchFailed
)

var eventLabels = map[event]string{
	evEnq:            "enq",
	evScratchPending: "scratchpad pending",
	evCTS:            "cts",
	evAckMore:        "ack, more pending",
	evAckDone:        "ack",
	evRetry:          "retry",
	evExhausted:      "retries exhausted",
	evNothingToSend:  "nothing to send",
	evScratchDone:    "scratchpad done",
	evScratchFailed:  "scratchpad failed",
}

func (e event) String() string {
	if s, ok := eventLabels[e]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

type edge struct {
	from TransmissionState
	ev   event
}

var transitions = map[edge]TransmissionState{
	{StateIdle, evEnq}:                 StateRTS,
	{StateIdle, evScratchPending}:      StateScratchpad,
	{StateRTS, evCTS}:                  StateSendData,
	{StateRTS, evRetry}:                StateRTS,
	{StateRTS, evExhausted}:            StateIdle,
	{StateSendData, evAckMore}:         StateRTS,
	{StateSendData, evAckDone}:         StateIdle,
	{StateSendData, evRetry}:           StateRTS,
	{StateSendData, evExhausted}:       StateIdle,
	{StateSendData, evNothingToSend}:   StateIdle,
	{StateScratchpad, evScratchDone}:   StateIdle,
	{StateScratchpad, evScratchFailed}: StateIdle,
}

// transition returns the state that follows s on ev. Pairs not in the
// table are rejected and leave the state unchanged.
func transition(s TransmissionState, ev event) (TransmissionState, bool) {
	next, ok := transitions[edge{s, ev}]
	if !ok {
		return s, false
	}
	return next, true
}
