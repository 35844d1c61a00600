package capture

import "fmt"

// Phase is the session state machine position.
type Phase int

const (
	Idle Phase = iota
	Capturing
	Counting
	Composing
)

var phaseNames = map[Phase]string{
	Idle:      "idle",
	Capturing: "capturing",
	Counting:  "counting",
	Composing: "composing",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of the session state machine.
//
//	idle → capturing(i) → counting(i) → capturing(i+1) … → composing → idle
//
// Shot is the shot being captured (Capturing) or the one just taken
// (Counting). Remaining counts countdown steps left before the next shot.
type State struct {
	Phase     Phase `json:"phase"`
	Shot      int   `json:"shot,omitempty"`
	Total     int   `json:"total,omitempty"`
	Remaining int   `json:"remaining,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case Capturing, Counting:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Shot)
	}
	return s.Phase.String()
}
