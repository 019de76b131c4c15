package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPlayerCount = errors.New("invalid player count")
var ErrSessionFull = errors.New("session full")
var ErrAlreadyJoined = errors.New("already joined")
var ErrWrongPhase = errors.New("wrong phase")
var ErrNotAuthorized = errors.New("not authorized")
var ErrIneligibleTarget = errors.New("ineligible target")
var ErrInvalidIndex = errors.New("invalid policy index")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrEmptyMessage = errors.New("empty chat message")

// ErrIneligibleNominee is the nomination flavour of ErrIneligibleTarget.
var ErrIneligibleNominee = fmt.Errorf("%w: ineligible nominee", ErrIneligibleTarget)

// ErrGameOver is returned for game actions after the match has ended.
var ErrGameOver = fmt.Errorf("%w: game already completed", ErrWrongPhase)

type Faction string

const (
	FactionNone   Faction = ""
	FactionUnion  Faction = "student_union"
	FactionOffice Faction = "chancellors_office"
)

type Role string

const (
	RoleNone              Role = ""
	RoleStudentUnion      Role = "student_union"
	RoleChancellorsOffice Role = "chancellors_office"
	RoleChancellor        Role = "chancellor" // the hidden leader of the office
)

// Faction reports the team a role plays for. The Chancellor is an ordinary
// office member as far as factions go.
func (r Role) Faction() Faction {
	switch r {
	case RoleStudentUnion:
		return FactionUnion
	case RoleChancellorsOffice, RoleChancellor:
		return FactionOffice
	default:
		return FactionNone
	}
}

type Vote string

const (
	VoteNone Vote = ""
	VoteJa   Vote = "ja"
	VoteNein Vote = "nein"
)

type Phase string

const (
	PhaseLobby           Phase = "lobby"
	PhaseRoleReveal      Phase = "role_reveal"
	PhaseNominating      Phase = "nominating"
	PhaseVoting          Phase = "voting"
	PhaseProposerDiscard Phase = "proposer_discard"
	PhaseEnactorEnact    Phase = "enactor_enact"
	PhaseExecutiveAction Phase = "executive_action"
	PhaseGameOver        Phase = "game_over"
)

type Power string

const (
	PowerNone            Power = ""
	PowerInvestigate     Power = "investigate"
	PowerPeek            Power = "peek"
	PowerSpecialElection Power = "special_election"
	PowerExecution       Power = "execution"
)

type Policy struct {
	ID      string  `json:"id"`
	Faction Faction `json:"faction"`
	Name    string  `json:"name"`
}

type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role,omitempty"`
	Alive        bool   `json:"alive"`
	IsProposer   bool   `json:"is_proposer"`
	IsEnactor    bool   `json:"is_enactor"`
	Investigated bool   `json:"investigated"`
	Vote         Vote   `json:"vote,omitempty"`
	Connected    bool   `json:"connected"`
}

// Supply is the policy deck. Draw[0] is the next card drawn.
type Supply struct {
	Draw    []Policy `json:"draw"`
	Discard []Policy `json:"discard"`
}

type ChatLine struct {
	ID            int       `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Text          string    `json:"text"`
	At            time.Time `json:"at"`
}

// Ballot is the public record of the most recent tallied election.
type Ballot struct {
	ProposerID string          `json:"proposer_id"`
	NomineeID  string          `json:"nominee_id"`
	Approvals  int             `json:"approvals"`
	Rejections int             `json:"rejections"`
	Passed     bool            `json:"passed"`
	Votes      map[string]Vote `json:"votes"`
}

// Session is the authoritative state of one match. Treat it as a value:
// Apply never mutates its input.
type Session struct {
	Code                  string        `json:"code"`
	HostID                string        `json:"host_id"`
	Participants          []Participant `json:"participants"`
	UnionTrack            []Policy      `json:"union_track"`
	OfficeTrack           []Policy      `json:"office_track"`
	Supply                Supply        `json:"supply"`
	Phase                 Phase         `json:"phase"`
	ProposerIndex         int           `json:"proposer_index"` // position in the alive ordering
	NominatedEnactorID    string        `json:"nominated_enactor_id,omitempty"`
	DrawnPolicies         []Policy      `json:"drawn_policies,omitempty"`
	PoliciesForEnactor    []Policy      `json:"policies_for_enactor,omitempty"`
	FailedElectionStreak  int           `json:"failed_election_streak"`
	LastProposerID        string        `json:"last_proposer_id,omitempty"`
	LastEnactorID         string        `json:"last_enactor_id,omitempty"`
	PendingPower          Power         `json:"pending_power,omitempty"`
	InvestigationTargetID string        `json:"investigation_target_id,omitempty"`
	PeekedPolicies        []Policy      `json:"peeked_policies,omitempty"`
	LastBallot            *Ballot       `json:"last_ballot,omitempty"`
	Winner                Faction       `json:"winner,omitempty"`
	WinReason             string        `json:"win_reason,omitempty"`
	Chat                  []ChatLine    `json:"chat"`
	ChatSeq               int           `json:"chat_seq"`
}

type CommandType string

const (
	CmdJoin                     CommandType = "Join"
	CmdStart                    CommandType = "Start"
	CmdAcknowledgeRoles         CommandType = "AcknowledgeRoles"
	CmdRoleRevealElapsed        CommandType = "RoleRevealElapsed"
	CmdNominate                 CommandType = "Nominate"
	CmdVote                     CommandType = "Vote"
	CmdDiscard                  CommandType = "Discard"
	CmdEnact                    CommandType = "Enact"
	CmdInvestigate              CommandType = "Investigate"
	CmdAcknowledgeInvestigation CommandType = "AcknowledgeInvestigation"
	CmdPeek                     CommandType = "Peek"
	CmdAcknowledgePeek          CommandType = "AcknowledgePeek"
	CmdSpecialElection          CommandType = "SpecialElection"
	CmdExecute                  CommandType = "Execute"
	CmdChat                     CommandType = "Chat"
	CmdConnect                  CommandType = "Connect"
	CmdDisconnect               CommandType = "Disconnect"
	CmdLeave                    CommandType = "Leave"
)

/*
	CmdJoin           -> EvtParticipantJoined (+ EvtHostChanged for the first seat)
	CmdStart          -> EvtGameStarted
	CmdNominate       -> EvtNominated
	CmdVote           -> EvtVoteCast -> EvtElectionPassed -> EvtDeckReshuffled? -> EvtPoliciesDrawn
	                                 -> EvtElectionFailed -> EvtProposerAdvanced | EvtChaosEnacted -> EvtPolicyEnacted
	CmdDiscard        -> EvtPolicyDiscarded
	CmdEnact          -> EvtPolicyEnacted -> EvtPowerGranted | EvtProposerAdvanced | EvtGameOver
	power commands    -> EvtInvestigated | EvtPeeked | EvtSpecialElection | EvtExecuted -> ...
*/

// Command is one participant action. At is supplied by the caller so the
// engine never reads a clock.
type Command struct {
	Type     CommandType
	ActorID  string
	TargetID string
	Index    int
	Approve  bool
	Name     string
	Text     string
	At       time.Time
}

type EventType string

const (
	EvtParticipantJoined EventType = "ParticipantJoined"
	EvtParticipantLeft   EventType = "ParticipantLeft"
	EvtHostChanged       EventType = "HostChanged"
	EvtConnected         EventType = "Connected"
	EvtDisconnected      EventType = "Disconnected"
	EvtGameStarted       EventType = "GameStarted"
	EvtNominationOpened  EventType = "NominationOpened"
	EvtNominated         EventType = "Nominated"
	EvtVoteCast          EventType = "VoteCast"
	EvtElectionPassed    EventType = "ElectionPassed"
	EvtElectionFailed    EventType = "ElectionFailed"
	EvtDeckReshuffled    EventType = "DeckReshuffled"
	EvtPoliciesDrawn     EventType = "PoliciesDrawn"
	EvtPolicyDiscarded   EventType = "PolicyDiscarded"
	EvtPolicyEnacted     EventType = "PolicyEnacted"
	EvtChaosEnacted      EventType = "ChaosEnacted"
	EvtPowerGranted      EventType = "PowerGranted"
	EvtInvestigated      EventType = "Investigated"
	EvtPeeked            EventType = "Peeked"
	EvtSpecialElection   EventType = "SpecialElection"
	EvtExecuted          EventType = "Executed"
	EvtProposerAdvanced  EventType = "ProposerAdvanced"
	EvtChatPosted        EventType = "ChatPosted"
	EvtGameOver          EventType = "GameOver"
)

// Event describes what a transition did. Events carry public facts only.
type Event struct {
	Type     EventType
	ActorID  string
	TargetID string
	Faction  Faction
	Power    Power
	Reason   string
}

// Source is the randomness the engine depends on. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Engine applies commands to sessions. It holds nothing but its randomness
// source, so one Engine per session keeps shuffles reproducible.
type Engine struct {
	rng Source
}

func New(rng Source) *Engine {
	return &Engine{rng: rng}
}

// Apply validates cmd against s and returns the events and the resulting
// session. On error the returned session is s itself, untouched.
func (e *Engine) Apply(s Session, cmd Command) ([]Event, Session, error) {
	if s.Phase == PhaseGameOver && !allowedAfterGameOver(cmd.Type) {
		return nil, s, ErrGameOver
	}

	next := s.Clone()
	var (
		events []Event
		err    error
	)

	switch cmd.Type {
	case CmdJoin:
		events, err = join(&next, cmd)
	case CmdLeave:
		events, err = leave(&next, cmd)
	case CmdConnect:
		events, err = setConnected(&next, cmd, true)
	case CmdDisconnect:
		events, err = setConnected(&next, cmd, false)
	case CmdChat:
		events, err = postChat(&next, cmd)
	case CmdStart:
		events, err = e.start(&next, cmd)
	case CmdAcknowledgeRoles:
		events, err = acknowledgeRoles(&next, cmd)
	case CmdRoleRevealElapsed:
		events, err = roleRevealElapsed(&next)
	case CmdNominate:
		events, err = nominate(&next, cmd)
	case CmdVote:
		events, err = e.vote(&next, cmd)
	case CmdDiscard:
		events, err = discard(&next, cmd)
	case CmdEnact:
		events, err = enactChoice(&next, cmd)
	case CmdInvestigate:
		events, err = investigate(&next, cmd)
	case CmdAcknowledgeInvestigation:
		events, err = acknowledgeInvestigation(&next, cmd)
	case CmdPeek:
		events, err = peek(&next, cmd)
	case CmdAcknowledgePeek:
		events, err = acknowledgePeek(&next, cmd)
	case CmdSpecialElection:
		events, err = specialElection(&next, cmd)
	case CmdExecute:
		events, err = execute(&next, cmd)
	default:
		err = ErrUnsupportedCommand
	}

	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}

func allowedAfterGameOver(t CommandType) bool {
	switch t {
	case CmdChat, CmdConnect, CmdDisconnect, CmdLeave:
		return true
	}
	return false
}
