package livedto

import "strings"

// MoveRequest is a move proposal as submitted by a client and echoed back verbatim.
type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI returns the move in UCI long algebraic form (e.g. e7e8q).
func (m MoveRequest) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// WithoutPromotion drops the promotion piece.
func (m MoveRequest) WithoutPromotion() MoveRequest {
	m.Promotion = ""
	return m
}

func (m MoveRequest) String() string {
	if m.Promotion == "" {
		return m.From + "-" + m.To
	}
	return m.From + "-" + m.To + "=" + m.Promotion
}
