package engine

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// nextCommand picks a legal move for whoever has to act in s.
func nextCommand(s Session, r *rand.Rand, last CommandType) Command {
	proposer := s.ProposerID()
	pick := func(ok func(Participant) bool) string {
		var ids []string
		for _, p := range s.Participants {
			if p.Alive && p.ID != proposer && ok(p) {
				ids = append(ids, p.ID)
			}
		}
		return ids[r.IntN(len(ids))]
	}
	anyone := func(Participant) bool { return true }

	switch s.Phase {
	case PhaseRoleReveal:
		return Command{Type: CmdAcknowledgeRoles, ActorID: s.Participants[0].ID}
	case PhaseNominating:
		return Command{Type: CmdNominate, ActorID: proposer, TargetID: pick(func(p Participant) bool {
			return s.checkNominee(proposer, p.ID) == nil
		})}
	case PhaseVoting:
		for _, p := range s.Participants {
			if p.Alive && p.Vote == VoteNone {
				return Command{Type: CmdVote, ActorID: p.ID, Approve: r.IntN(3) > 0}
			}
		}
	case PhaseProposerDiscard:
		return Command{Type: CmdDiscard, ActorID: proposer, Index: r.IntN(len(s.DrawnPolicies))}
	case PhaseEnactorEnact:
		return Command{Type: CmdEnact, ActorID: s.EnactorID(), Index: r.IntN(len(s.PoliciesForEnactor))}
	case PhaseExecutiveAction:
		switch s.PendingPower {
		case PowerInvestigate:
			if s.InvestigationTargetID != "" {
				return Command{Type: CmdAcknowledgeInvestigation, ActorID: proposer}
			}
			return Command{Type: CmdInvestigate, ActorID: proposer, TargetID: pick(func(p Participant) bool { return !p.Investigated })}
		case PowerPeek:
			if last == CmdPeek {
				return Command{Type: CmdAcknowledgePeek, ActorID: proposer}
			}
			return Command{Type: CmdPeek, ActorID: proposer}
		case PowerSpecialElection:
			return Command{Type: CmdSpecialElection, ActorID: proposer, TargetID: pick(anyone)}
		case PowerExecution:
			return Command{Type: CmdExecute, ActorID: proposer, TargetID: pick(anyone)}
		}
	}
	return Command{}
}

func checkInvariants(t *testing.T, s Session) {
	t.Helper()
	assertConserved(t, s)

	leaders, proposers := 0, 0
	for _, p := range s.Participants {
		if p.Role == RoleChancellor {
			leaders++
		}
		if p.IsProposer {
			proposers++
			require.True(t, p.Alive, "proposer %s is expelled", p.ID)
		}
	}
	require.Equal(t, 1, leaders)
	require.Equal(t, 1, proposers)

	if s.Phase != PhaseProposerDiscard {
		require.Empty(t, s.DrawnPolicies, "drawn policies in %s", s.Phase)
	}
	if s.Phase != PhaseEnactorEnact {
		require.Empty(t, s.PoliciesForEnactor, "enactor policies in %s", s.Phase)
	}
	if s.Phase != PhaseGameOver {
		require.Equal(t, s.proposerSeat(), s.aliveSeats()[s.ProposerIndex])
		require.Empty(t, s.Winner)
	}

	for _, viewer := range s.Participants {
		v := Project(s, viewer.ID)
		for i, pv := range v.Participants {
			other := s.Participants[i]
			if s.Phase != PhaseGameOver && viewer.Role.Faction() == FactionUnion && other.ID != viewer.ID {
				require.Empty(t, pv.Role)
			}
		}
		if viewer.ID != s.ProposerID() {
			require.Empty(t, v.DrawnPolicies)
			require.Empty(t, v.PeekedPolicies)
			require.Empty(t, v.InvestigatedFaction)
		}
		if viewer.ID != s.EnactorID() {
			require.Empty(t, v.PoliciesForEnactor)
		}
	}
}

func TestRandomPlaythroughsKeepInvariants(t *testing.T) {
	for n := MinPlayers; n <= MaxPlayers; n++ {
		for seed := uint64(1); seed <= 8; seed++ {
			t.Run(fmt.Sprintf("%d players seed %d", n, seed), func(t *testing.T) {
				e := newTestEngine(seed*100 + uint64(n))
				r := rand.New(rand.NewPCG(seed, uint64(n)))
				s := lobbyWith(t, e, n)
				_, s = mustApply(t, e, s, Command{Type: CmdStart, ActorID: pid(1)})

				var last CommandType
				for step := 0; s.Phase != PhaseGameOver; step++ {
					require.Less(t, step, 5000, "match did not finish")
					cmd := nextCommand(s, r, last)
					_, s = mustApply(t, e, s, cmd)
					last = cmd.Type
					checkInvariants(t, s)
				}
				require.NotEmpty(t, s.Winner)
				require.NotEmpty(t, s.WinReason)
			})
		}
	}
}
