package engine

import (
	"fmt"
	"slices"
)

func discard(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseProposerDiscard {
		return nil, ErrWrongPhase
	}
	if cmd.ActorID != s.ProposerID() {
		return nil, ErrNotAuthorized
	}
	if cmd.Index < 0 || cmd.Index >= len(s.DrawnPolicies) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, cmd.Index, len(s.DrawnPolicies))
	}

	s.Supply.Discard = append(s.Supply.Discard, s.DrawnPolicies[cmd.Index])
	s.PoliciesForEnactor = slices.Delete(slices.Clone(s.DrawnPolicies), cmd.Index, cmd.Index+1)
	s.DrawnPolicies = nil
	s.Phase = PhaseEnactorEnact
	return []Event{{Type: EvtPolicyDiscarded, ActorID: cmd.ActorID, TargetID: s.EnactorID()}}, nil
}

func enactChoice(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseEnactorEnact {
		return nil, ErrWrongPhase
	}
	if cmd.ActorID != s.EnactorID() {
		return nil, ErrNotAuthorized
	}
	if cmd.Index < 0 || cmd.Index >= len(s.PoliciesForEnactor) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, cmd.Index, len(s.PoliciesForEnactor))
	}

	chosen := s.PoliciesForEnactor[cmd.Index]
	for i, p := range s.PoliciesForEnactor {
		if i != cmd.Index {
			s.Supply.Discard = append(s.Supply.Discard, p)
		}
	}
	s.PoliciesForEnactor = nil
	events := s.enact(chosen, false)
	events[0].ActorID = cmd.ActorID
	return events, nil
}

// enact appends p to its track and resolves what follows: a win, a pending
// executive power, or the next nomination. Chaos cards never grant powers.
func (s *Session) enact(p Policy, chaos bool) []Event {
	events := []Event{{Type: EvtPolicyEnacted, Faction: p.Faction}}
	if p.Faction == FactionUnion {
		s.UnionTrack = append(s.UnionTrack, p)
	} else {
		s.OfficeTrack = append(s.OfficeTrack, p)
	}

	if len(s.UnionTrack) >= UnionWinThreshold {
		return append(events, s.finish(FactionUnion, reasonUnionTrack))
	}
	if len(s.OfficeTrack) >= OfficeWinThreshold {
		return append(events, s.finish(FactionOffice, reasonOfficeTrack))
	}

	if !chaos && p.Faction == FactionOffice {
		if power := PowerFor(len(s.Participants), len(s.OfficeTrack)); power != PowerNone {
			s.PendingPower = power
			s.Phase = PhaseExecutiveAction
			for i := range s.Participants {
				s.Participants[i].IsEnactor = false
			}
			return append(events, Event{Type: EvtPowerGranted, TargetID: s.ProposerID(), Power: power})
		}
	}
	return append(events, s.advanceProposer())
}
