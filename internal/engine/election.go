package engine

import "fmt"

const (
	reasonUnionTrack    = "The Student Union enacted five policies"
	reasonOfficeTrack   = "The Chancellor's Office enacted six policies"
	reasonLeaderElected = "The Chancellor was elected Policy Chair after three office policies"
	reasonLeaderKilled  = "The Chancellor was expelled"
)

func nominate(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseNominating {
		return nil, ErrWrongPhase
	}
	proposer := s.ProposerID()
	if cmd.ActorID != proposer {
		return nil, ErrNotAuthorized
	}
	if err := s.checkNominee(proposer, cmd.TargetID); err != nil {
		return nil, err
	}

	for i := range s.Participants {
		s.Participants[i].Vote = VoteNone
	}
	s.NominatedEnactorID = cmd.TargetID
	s.Phase = PhaseVoting
	return []Event{{Type: EvtNominated, ActorID: proposer, TargetID: cmd.TargetID}}, nil
}

// checkNominee applies the seat and term-limit rules. With more than
// TermLimitLivingThreshold living players the whole last government is
// barred, otherwise only its enactor.
func (s *Session) checkNominee(proposer, nominee string) error {
	p := s.find(nominee)
	switch {
	case p == nil:
		return fmt.Errorf("%w: unknown participant", ErrIneligibleNominee)
	case !p.Alive:
		return fmt.Errorf("%w: participant is expelled", ErrIneligibleNominee)
	case nominee == proposer:
		return fmt.Errorf("%w: cannot nominate yourself", ErrIneligibleNominee)
	case nominee == s.LastEnactorID:
		return fmt.Errorf("%w: term limited", ErrIneligibleNominee)
	case nominee == s.LastProposerID && s.AliveCount() > TermLimitLivingThreshold:
		return fmt.Errorf("%w: term limited", ErrIneligibleNominee)
	}
	return nil
}

func (e *Engine) vote(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseVoting {
		return nil, ErrWrongPhase
	}
	p := s.find(cmd.ActorID)
	if p == nil || !p.Alive {
		return nil, ErrNotAuthorized
	}
	p.Vote = VoteNein
	if cmd.Approve {
		p.Vote = VoteJa
	}

	events := []Event{{Type: EvtVoteCast, ActorID: cmd.ActorID}}
	for _, q := range s.Participants {
		if q.Alive && q.Vote == VoteNone {
			return events, nil
		}
	}
	return append(events, e.tally(s)...), nil
}

// tally resolves a fully cast election. A strict majority of the living
// seats is needed.
func (e *Engine) tally(s *Session) []Event {
	ballot := &Ballot{
		ProposerID: s.ProposerID(),
		NomineeID:  s.NominatedEnactorID,
		Votes:      make(map[string]Vote),
	}
	living := 0
	for _, p := range s.Participants {
		if !p.Alive {
			continue
		}
		living++
		ballot.Votes[p.ID] = p.Vote
		if p.Vote == VoteJa {
			ballot.Approvals++
		} else {
			ballot.Rejections++
		}
	}
	ballot.Passed = ballot.Approvals >= living/2+1
	s.LastBallot = ballot

	for i := range s.Participants {
		s.Participants[i].Vote = VoteNone
	}

	if !ballot.Passed {
		return e.electionFailed(s)
	}

	events := []Event{{Type: EvtElectionPassed, ActorID: ballot.ProposerID, TargetID: ballot.NomineeID}}
	s.FailedElectionStreak = 0

	nominee := s.find(ballot.NomineeID)
	nominee.IsEnactor = true
	if len(s.OfficeTrack) >= LeaderElectionThreshold && nominee.Role == RoleChancellor {
		return append(events, s.finish(FactionOffice, reasonLeaderElected))
	}

	s.LastProposerID = ballot.ProposerID
	s.LastEnactorID = ballot.NomineeID

	drawn, reshuffled := e.draw(s, DrawSize)
	if reshuffled {
		events = append(events, Event{Type: EvtDeckReshuffled})
	}
	s.DrawnPolicies = drawn
	s.Phase = PhaseProposerDiscard
	return append(events, Event{Type: EvtPoliciesDrawn, TargetID: ballot.ProposerID})
}

func (e *Engine) electionFailed(s *Session) []Event {
	s.FailedElectionStreak++
	events := []Event{{Type: EvtElectionFailed, TargetID: s.NominatedEnactorID}}
	s.NominatedEnactorID = ""
	if s.FailedElectionStreak < ChaosThreshold {
		return append(events, s.advanceProposer())
	}
	return append(events, e.chaos(s)...)
}

// chaos enacts the top card after the third failed election. It never
// grants a power and clears term limits.
func (e *Engine) chaos(s *Session) []Event {
	events := []Event{{Type: EvtChaosEnacted}}
	drawn, reshuffled := e.draw(s, 1)
	if reshuffled {
		events = append(events, Event{Type: EvtDeckReshuffled})
	}
	s.FailedElectionStreak = 0
	s.LastProposerID = ""
	s.LastEnactorID = ""
	if len(drawn) == 0 {
		return append(events, s.advanceProposer())
	}
	return append(events, s.enact(drawn[0], true)...)
}
