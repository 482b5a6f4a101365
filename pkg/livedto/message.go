package livedto

// Kind names a message on the live channel.
type Kind string

const (
	KindRoleAssigned   Kind = "role-assigned"
	KindPositionSync   Kind = "position-sync"
	KindMoveSubmitted  Kind = "move-submitted"
	KindMoveBroadcast  Kind = "move-broadcast"
	KindMoveRejected   Kind = "move-rejected"
	KindResetRequested Kind = "reset-requested"
	KindResetBroadcast Kind = "reset-broadcast"
	KindError          Kind = "error"
)

// Envelope is the single JSON frame shape used in both directions.
type Envelope struct {
	Type   Kind         `json:"type"`
	Role   Role         `json:"role,omitempty"`
	FEN    string       `json:"fen,omitempty"`
	Move   *MoveRequest `json:"move,omitempty"`
	Reason Reason       `json:"reason,omitempty"`
	Text   string       `json:"text,omitempty"`
}

func RoleAssigned(r Role) Envelope { return Envelope{Type: KindRoleAssigned, Role: r} }

func PositionSync(fen string) Envelope { return Envelope{Type: KindPositionSync, FEN: fen} }

func MoveBroadcast(m MoveRequest) Envelope { return Envelope{Type: KindMoveBroadcast, Move: &m} }

func MoveRejected(m MoveRequest, reason Reason, text string) Envelope {
	return Envelope{Type: KindMoveRejected, Move: &m, Reason: reason.Outward(), Text: text}
}

func ResetBroadcast(fen string) Envelope { return Envelope{Type: KindResetBroadcast, FEN: fen} }

func MoveSubmitted(m MoveRequest) Envelope { return Envelope{Type: KindMoveSubmitted, Move: &m} }

func ResetRequested() Envelope { return Envelope{Type: KindResetRequested} }

func ErrorMessage(text string) Envelope { return Envelope{Type: KindError, Text: text} }

// StateSnapshot is the read-only view served over HTTP.
type StateSnapshot struct {
	SessionID         string `json:"session_id"`
	FEN               string `json:"fen"`
	State             string `json:"state"`
	SideToMove        Role   `json:"side_to_move,omitempty"`
	FirstPlayerTaken  bool   `json:"first_player_taken"`
	SecondPlayerTaken bool   `json:"second_player_taken"`
	Outcome           string `json:"outcome,omitempty"`
	MoveCount         int    `json:"move_count"`
}
