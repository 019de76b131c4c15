package engine

import "fmt"

// start deals roles, builds the deck and picks the first Vice-Chancellor.
func (e *Engine) start(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}
	if cmd.ActorID != s.HostID {
		return nil, fmt.Errorf("%w: only the host can start", ErrNotAuthorized)
	}
	n := len(s.Participants)
	dist, ok := RoleDistribution[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d participants, need %d-%d", ErrInvalidPlayerCount, n, MinPlayers, MaxPlayers)
	}

	roles := make([]Role, 0, n)
	for i := 0; i < dist.Union; i++ {
		roles = append(roles, RoleStudentUnion)
	}
	for i := 0; i < dist.Office; i++ {
		roles = append(roles, RoleChancellorsOffice)
	}
	roles = append(roles, RoleChancellor)
	e.rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	for i := range s.Participants {
		p := &s.Participants[i]
		p.Role = roles[i]
		p.Alive = true
		p.IsProposer = false
		p.IsEnactor = false
		p.Investigated = false
		p.Vote = VoteNone
	}

	s.UnionTrack = nil
	s.OfficeTrack = nil
	s.Supply = Supply{Draw: e.newDeck()}
	s.FailedElectionStreak = 0
	s.LastProposerID = ""
	s.LastEnactorID = ""
	s.LastBallot = nil
	s.Winner = FactionNone
	s.WinReason = ""
	s.openNomination()
	s.setProposer(e.rng.IntN(n))
	s.Phase = PhaseRoleReveal

	return []Event{{Type: EvtGameStarted, ActorID: cmd.ActorID, TargetID: s.ProposerID()}}, nil
}

// acknowledgeRoles ends the reveal early. Any seated participant may do it.
func acknowledgeRoles(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseRoleReveal {
		return nil, ErrWrongPhase
	}
	if s.find(cmd.ActorID) == nil {
		return nil, ErrNotAuthorized
	}
	return roleRevealElapsed(s)
}

func roleRevealElapsed(s *Session) ([]Event, error) {
	if s.Phase != PhaseRoleReveal {
		return nil, ErrWrongPhase
	}
	s.openNomination()
	return []Event{{Type: EvtNominationOpened, TargetID: s.ProposerID()}}, nil
}
