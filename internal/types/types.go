package types

import (
	"time"

	"github.com/DoyleJ11/secret-chancellor/internal/engine"
)

// ClientMessage is every message a player's client may send. Which fields
// matter depends on Type.
type ClientMessage struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id,omitempty"`
	Approve  bool   `json:"approve,omitempty"`
	Index    int    `json:"index,omitempty"`
	Text     string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type          string       `json:"type"` // "Welcome" | "StateSnapshot" | "Error"
	ParticipantID string       `json:"participant_id,omitempty"`
	Version       int          `json:"version,omitempty"`
	Deadline      *time.Time   `json:"deadline,omitempty"`
	View          *engine.View `json:"view,omitempty"`
	Code          string       `json:"code,omitempty"` // error kind, e.g. "WrongPhase"
	Error         string       `json:"error,omitempty"`
}

const (
	MsgWelcome       = "Welcome"
	MsgStateSnapshot = "StateSnapshot"
	MsgError         = "Error"
)

// MatchSummary is the public answer to GET /matches/{code}.
type MatchSummary struct {
	Code      string         `json:"code"`
	Phase     engine.Phase   `json:"phase"`
	Players   int            `json:"players"`
	Connected int            `json:"connected"`
	HostName  string         `json:"host_name,omitempty"`
	Version   int            `json:"version"`
	Winner    engine.Faction `json:"winner,omitempty"`
}
