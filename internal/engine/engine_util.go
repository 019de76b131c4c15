package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// NewSession creates an empty match waiting in the lobby.
func NewSession(code string) Session {
	return Session{
		Code:  code,
		Phase: PhaseLobby,
	}
}

// Clone returns a deep copy so transitions never alias their input.
func (s Session) Clone() Session {
	c := s
	c.Participants = slices.Clone(s.Participants)
	c.UnionTrack = slices.Clone(s.UnionTrack)
	c.OfficeTrack = slices.Clone(s.OfficeTrack)
	c.Supply = Supply{
		Draw:    slices.Clone(s.Supply.Draw),
		Discard: slices.Clone(s.Supply.Discard),
	}
	c.DrawnPolicies = slices.Clone(s.DrawnPolicies)
	c.PoliciesForEnactor = slices.Clone(s.PoliciesForEnactor)
	c.PeekedPolicies = slices.Clone(s.PeekedPolicies)
	c.Chat = slices.Clone(s.Chat)
	if s.LastBallot != nil {
		b := *s.LastBallot
		b.Votes = maps.Clone(s.LastBallot.Votes)
		c.LastBallot = &b
	}
	return c
}

// CardCount is the number of policies anywhere in the session. It equals
// DeckSize for every started match.
func (s Session) CardCount() int {
	return len(s.UnionTrack) + len(s.OfficeTrack) +
		len(s.Supply.Draw) + len(s.Supply.Discard) +
		len(s.DrawnPolicies) + len(s.PoliciesForEnactor)
}

func (s Session) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ProposerID returns the current Vice-Chancellor, or "" before the match starts.
func (s Session) ProposerID() string {
	for _, p := range s.Participants {
		if p.IsProposer {
			return p.ID
		}
	}
	return ""
}

func (s Session) EnactorID() string {
	for _, p := range s.Participants {
		if p.IsEnactor {
			return p.ID
		}
	}
	return ""
}

func (s Session) AliveCount() int {
	return len(s.aliveSeats())
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Kind maps an engine error to the short code sent to clients.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPlayerCount):
		return "InvalidPlayerCount"
	case errors.Is(err, ErrSessionFull):
		return "SessionFull"
	case errors.Is(err, ErrAlreadyJoined):
		return "AlreadyJoined"
	case errors.Is(err, ErrWrongPhase):
		return "WrongPhase"
	case errors.Is(err, ErrNotAuthorized):
		return "NotAuthorized"
	case errors.Is(err, ErrIneligibleTarget):
		return "IneligibleTarget"
	case errors.Is(err, ErrInvalidIndex):
		return "InvalidIndex"
	case errors.Is(err, ErrEmptyMessage):
		return "EmptyMessage"
	case errors.Is(err, ErrUnsupportedCommand):
		return "UnsupportedCommand"
	default:
		return "Internal"
	}
}

func (s *Session) find(id string) *Participant {
	if id == "" {
		return nil
	}
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *Session) seatOf(id string) int {
	return slices.IndexFunc(s.Participants, func(p Participant) bool { return p.ID == id })
}

// aliveSeats lists the seats of living participants in seating order.
func (s *Session) aliveSeats() []int {
	seats := make([]int, 0, len(s.Participants))
	for i, p := range s.Participants {
		if p.Alive {
			seats = append(seats, i)
		}
	}
	return seats
}

func (s *Session) proposerSeat() int {
	if seat := slices.IndexFunc(s.Participants, func(p Participant) bool { return p.IsProposer }); seat >= 0 {
		return seat
	}
	alive := s.aliveSeats()
	if len(alive) == 0 {
		return -1
	}
	return alive[s.ProposerIndex%len(alive)]
}

// setProposer moves the Vice-Chancellor seat and keeps ProposerIndex in
// step with the alive ordering.
func (s *Session) setProposer(seat int) {
	for i := range s.Participants {
		s.Participants[i].IsProposer = i == seat
	}
	s.ProposerIndex = slices.Index(s.aliveSeats(), seat)
}

// nextAliveSeat walks the seating order from seat and returns the next
// living participant's seat.
func (s *Session) nextAliveSeat(seat int) int {
	n := len(s.Participants)
	for step := 1; step <= n; step++ {
		j := (seat + step) % n
		if s.Participants[j].Alive {
			return j
		}
	}
	return seat
}

func (s *Session) leader() *Participant {
	for i := range s.Participants {
		if s.Participants[i].Role == RoleChancellor {
			return &s.Participants[i]
		}
	}
	return nil
}

// openNomination clears per-round scratch and hands the floor to the
// current proposer.
func (s *Session) openNomination() {
	for i := range s.Participants {
		s.Participants[i].Vote = VoteNone
		s.Participants[i].IsEnactor = false
	}
	s.Phase = PhaseNominating
	s.NominatedEnactorID = ""
	s.DrawnPolicies = nil
	s.PoliciesForEnactor = nil
	s.PendingPower = PowerNone
	s.InvestigationTargetID = ""
	s.PeekedPolicies = nil
}

// advanceProposer passes the Vice-Chancellor seat to the next living
// participant and reopens nomination.
func (s *Session) advanceProposer() Event {
	next := s.nextAliveSeat(s.proposerSeat())
	s.setProposer(next)
	s.openNomination()
	return Event{Type: EvtProposerAdvanced, TargetID: s.Participants[next].ID}
}

func (s *Session) finish(winner Faction, reason string) Event {
	s.Phase = PhaseGameOver
	s.Winner = winner
	s.WinReason = reason
	s.PendingPower = PowerNone
	s.InvestigationTargetID = ""
	s.PeekedPolicies = nil
	return Event{Type: EvtGameOver, Faction: winner, Reason: reason}
}

// newDeck builds the 17-card policy set and shuffles it.
func (e *Engine) newDeck() []Policy {
	deck := make([]Policy, 0, DeckSize)
	for i := 0; i < UnionPolicyCount; i++ {
		deck = append(deck, Policy{
			ID:      fmt.Sprintf("pol-%02d", len(deck)+1),
			Faction: FactionUnion,
			Name:    unionPolicyNames[i%len(unionPolicyNames)],
		})
	}
	for i := 0; i < OfficePolicyCount; i++ {
		deck = append(deck, Policy{
			ID:      fmt.Sprintf("pol-%02d", len(deck)+1),
			Faction: FactionOffice,
			Name:    officePolicyNames[i%len(officePolicyNames)],
		})
	}
	e.shuffle(deck)
	return deck
}

func (e *Engine) shuffle(policies []Policy) {
	e.rng.Shuffle(len(policies), func(i, j int) {
		policies[i], policies[j] = policies[j], policies[i]
	})
}

// draw takes n cards off the top of the supply. When the draw pile is short
// the discard pile is shuffled back in first; this is the only reshuffle.
func (e *Engine) draw(s *Session, n int) ([]Policy, bool) {
	reshuffled := false
	if len(s.Supply.Draw) < n {
		pile := append(slices.Clone(s.Supply.Draw), s.Supply.Discard...)
		e.shuffle(pile)
		s.Supply.Draw = pile
		s.Supply.Discard = nil
		reshuffled = true
	}
	n = min(n, len(s.Supply.Draw))
	drawn := slices.Clone(s.Supply.Draw[:n])
	s.Supply.Draw = slices.Clone(s.Supply.Draw[n:])
	return drawn, reshuffled
}
