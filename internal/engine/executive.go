package engine

import (
	"fmt"
	"slices"
)

// requirePower checks that power is the one awaiting resolution and that the
// actor holds the Vice-Chancellor seat.
func requirePower(s *Session, cmd Command, power Power) error {
	if s.Phase != PhaseExecutiveAction || s.PendingPower != power {
		return fmt.Errorf("%w: %s is not pending", ErrWrongPhase, power)
	}
	if cmd.ActorID != s.ProposerID() {
		return ErrNotAuthorized
	}
	return nil
}

// livingOther returns the target if it is alive and not the actor.
func (s *Session) livingOther(actorID, targetID string) (*Participant, error) {
	t := s.find(targetID)
	switch {
	case t == nil:
		return nil, fmt.Errorf("%w: unknown participant", ErrIneligibleTarget)
	case !t.Alive:
		return nil, fmt.Errorf("%w: participant is expelled", ErrIneligibleTarget)
	case targetID == actorID:
		return nil, fmt.Errorf("%w: cannot target yourself", ErrIneligibleTarget)
	}
	return t, nil
}

func investigate(s *Session, cmd Command) ([]Event, error) {
	if err := requirePower(s, cmd, PowerInvestigate); err != nil {
		return nil, err
	}
	if s.InvestigationTargetID != "" {
		return nil, fmt.Errorf("%w: investigation already made", ErrWrongPhase)
	}
	t, err := s.livingOther(cmd.ActorID, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	if t.Investigated {
		return nil, fmt.Errorf("%w: already investigated", ErrIneligibleTarget)
	}

	t.Investigated = true
	s.InvestigationTargetID = t.ID
	return []Event{{Type: EvtInvestigated, ActorID: cmd.ActorID, TargetID: t.ID}}, nil
}

func acknowledgeInvestigation(s *Session, cmd Command) ([]Event, error) {
	if err := requirePower(s, cmd, PowerInvestigate); err != nil {
		return nil, err
	}
	if s.InvestigationTargetID == "" {
		return nil, fmt.Errorf("%w: nothing to acknowledge", ErrWrongPhase)
	}
	return []Event{s.advanceProposer()}, nil
}

func peek(s *Session, cmd Command) ([]Event, error) {
	if err := requirePower(s, cmd, PowerPeek); err != nil {
		return nil, err
	}
	n := min(PeekSize, len(s.Supply.Draw))
	s.PeekedPolicies = slices.Clone(s.Supply.Draw[:n])
	return []Event{{Type: EvtPeeked, ActorID: cmd.ActorID}}, nil
}

func acknowledgePeek(s *Session, cmd Command) ([]Event, error) {
	if err := requirePower(s, cmd, PowerPeek); err != nil {
		return nil, err
	}
	return []Event{s.advanceProposer()}, nil
}

// specialElection moves the Vice-Chancellor seat to the appointee. Rotation
// continues from there.
func specialElection(s *Session, cmd Command) ([]Event, error) {
	if err := requirePower(s, cmd, PowerSpecialElection); err != nil {
		return nil, err
	}
	t, err := s.livingOther(cmd.ActorID, cmd.TargetID)
	if err != nil {
		return nil, err
	}

	s.setProposer(s.seatOf(t.ID))
	s.openNomination()
	return []Event{{Type: EvtSpecialElection, ActorID: cmd.ActorID, TargetID: t.ID}}, nil
}

func execute(s *Session, cmd Command) ([]Event, error) {
	if err := requirePower(s, cmd, PowerExecution); err != nil {
		return nil, err
	}
	t, err := s.livingOther(cmd.ActorID, cmd.TargetID)
	if err != nil {
		return nil, err
	}

	events := []Event{{Type: EvtExecuted, ActorID: cmd.ActorID, TargetID: t.ID}}
	if t.Role == RoleChancellor {
		return append(events, s.finish(FactionUnion, reasonLeaderKilled)), nil
	}
	t.Alive = false
	t.Vote = VoteNone
	return append(events, s.advanceProposer()), nil
}
