package engine

import (
	"maps"
	"slices"
)

// ParticipantView is a participant as one viewer is allowed to see them.
type ParticipantView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role,omitempty"`
	Alive        bool   `json:"alive"`
	IsProposer   bool   `json:"is_proposer"`
	IsEnactor    bool   `json:"is_enactor"`
	IsHost       bool   `json:"is_host"`
	Investigated bool   `json:"investigated"`
	HasVoted     bool   `json:"has_voted"`
	Vote         Vote   `json:"vote,omitempty"`
	Connected    bool   `json:"connected"`
}

// View is the redacted session sent to a single participant. Draw and
// discard piles appear only as counts.
type View struct {
	Code                  string            `json:"code"`
	ViewerID              string            `json:"viewer_id"`
	ViewerRole            Role              `json:"viewer_role,omitempty"`
	HostID                string            `json:"host_id"`
	Phase                 Phase             `json:"phase"`
	Participants          []ParticipantView `json:"participants"`
	UnionTrack            []Policy          `json:"union_track"`
	OfficeTrack           []Policy          `json:"office_track"`
	DrawCount             int               `json:"draw_count"`
	DiscardCount          int               `json:"discard_count"`
	ProposerID            string            `json:"proposer_id,omitempty"`
	EnactorID             string            `json:"enactor_id,omitempty"`
	NominatedEnactorID    string            `json:"nominated_enactor_id,omitempty"`
	DrawnPolicies         []Policy          `json:"drawn_policies,omitempty"`
	PoliciesForEnactor    []Policy          `json:"policies_for_enactor,omitempty"`
	PeekedPolicies        []Policy          `json:"peeked_policies,omitempty"`
	FailedElectionStreak  int               `json:"failed_election_streak"`
	LastProposerID        string            `json:"last_proposer_id,omitempty"`
	LastEnactorID         string            `json:"last_enactor_id,omitempty"`
	PendingPower          Power             `json:"pending_power,omitempty"`
	InvestigationTargetID string            `json:"investigation_target_id,omitempty"`
	InvestigatedFaction   Faction           `json:"investigated_faction,omitempty"`
	LastBallot            *Ballot           `json:"last_ballot,omitempty"`
	Winner                Faction           `json:"winner,omitempty"`
	WinReason             string            `json:"win_reason,omitempty"`
	Chat                  []ChatLine        `json:"chat"`
}

// Project redacts s for viewerID. It is pure and shares no memory with s.
// An id that is not seated sees only public information.
func Project(s Session, viewerID string) View {
	viewer, seated := s.Participant(viewerID)
	if !seated {
		viewerID = ""
	}
	over := s.Phase == PhaseGameOver
	proposer := s.ProposerID()
	enactor := s.EnactorID()
	isProposer := seated && viewerID == proposer
	isEnactor := seated && viewerID == enactor

	v := View{
		Code:                 s.Code,
		ViewerID:             viewerID,
		ViewerRole:           viewer.Role,
		HostID:               s.HostID,
		Phase:                s.Phase,
		UnionTrack:           slices.Clone(s.UnionTrack),
		OfficeTrack:          slices.Clone(s.OfficeTrack),
		DrawCount:            len(s.Supply.Draw),
		DiscardCount:         len(s.Supply.Discard),
		ProposerID:           proposer,
		EnactorID:            enactor,
		NominatedEnactorID:   s.NominatedEnactorID,
		FailedElectionStreak: s.FailedElectionStreak,
		LastProposerID:       s.LastProposerID,
		LastEnactorID:        s.LastEnactorID,
		PendingPower:         s.PendingPower,
		Winner:               s.Winner,
		WinReason:            s.WinReason,
		Chat:                 slices.Clone(s.Chat),
	}

	v.Participants = make([]ParticipantView, 0, len(s.Participants))
	for _, p := range s.Participants {
		pv := ParticipantView{
			ID:           p.ID,
			Name:         p.Name,
			Alive:        p.Alive,
			IsProposer:   p.IsProposer,
			IsEnactor:    p.IsEnactor,
			IsHost:       p.ID == s.HostID,
			Investigated: p.Investigated,
			HasVoted:     p.Vote != VoteNone,
			Connected:    p.Connected,
		}
		if over || roleVisible(viewer, p, seated) {
			pv.Role = p.Role
		}
		if seated && p.ID == viewerID {
			pv.Vote = p.Vote
		}
		v.Participants = append(v.Participants, pv)
	}

	if isProposer {
		v.DrawnPolicies = slices.Clone(s.DrawnPolicies)
		v.PeekedPolicies = slices.Clone(s.PeekedPolicies)
		if s.InvestigationTargetID != "" {
			v.InvestigationTargetID = s.InvestigationTargetID
			if t, ok := s.Participant(s.InvestigationTargetID); ok {
				v.InvestigatedFaction = t.Role.Faction()
			}
		}
	}
	if isEnactor {
		v.PoliciesForEnactor = slices.Clone(s.PoliciesForEnactor)
	}
	if s.LastBallot != nil {
		b := *s.LastBallot
		b.Votes = maps.Clone(s.LastBallot.Votes)
		v.LastBallot = &b
	}
	return v
}

// roleVisible reports whether viewer may see other's role outside of game
// over. Office members recognise each other; union members see only
// themselves.
func roleVisible(viewer, other Participant, seated bool) bool {
	if !seated {
		return false
	}
	if viewer.ID == other.ID {
		return true
	}
	return viewer.Role.Faction() == FactionOffice && other.Role.Faction() == FactionOffice
}
