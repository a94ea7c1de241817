package call

import "fmt"

type Phase int

const (
	Idle Phase = iota
	Dialing
	Ringing
	Negotiating
	Active
	Ended
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dialing:
		return "dialing"
	case Ringing:
		return "ringing"
	case Negotiating:
		return "negotiating"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Ended is reachable from every phase; the table lists the forward moves only.
var transitions = map[Phase][]Phase{
	Idle:        {Dialing, Ringing},
	Dialing:     {Negotiating},
	Ringing:     {Negotiating},
	Negotiating: {Active},
}

func (p Phase) CanMoveTo(next Phase) bool {
	if p == Ended {
		return false
	}
	if next == Ended {
		return true
	}
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ringing reports whether the ring timer applies to p.
func (p Phase) ringing() bool { return p == Dialing || p == Ringing }

type Role int

const (
	Caller Role = iota
	Callee
)

func (r Role) String() string {
	if r == Caller {
		return "caller"
	}
	return "callee"
}
