package livedto

// Reason classifies a rejected move.
type Reason string

const (
	ReasonOutOfTurn   Reason = "OUT_OF_TURN"
	ReasonIllegalMove Reason = "ILLEGAL_MOVE"
	// ReasonEngineFault never leaves the coordinator; clients see ReasonIllegalMove.
	ReasonEngineFault Reason = "ENGINE_FAULT"
)

// Outward maps an internal reason to the one a client is allowed to see.
func (r Reason) Outward() Reason {
	if r == ReasonEngineFault {
		return ReasonIllegalMove
	}
	return r
}
