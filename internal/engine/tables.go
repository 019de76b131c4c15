package engine

const (
	MinPlayers = 5
	MaxPlayers = 10

	UnionPolicyCount  = 6
	OfficePolicyCount = 11
	DeckSize          = UnionPolicyCount + OfficePolicyCount

	UnionWinThreshold       = 5
	OfficeWinThreshold      = 6
	LeaderElectionThreshold = 3 // office policies before electing the Chancellor wins
	ChaosThreshold          = 3 // consecutive failed elections

	DrawSize = 3
	PeekSize = 3

	// Above this many living players both members of the last government are
	// term-limited; at or below it only the last enactor is.
	TermLimitLivingThreshold = 5

	MaxChatLines = 100
	MaxChatRunes = 500
)

// Distribution is the number of plain members per faction for a table size.
// The Chancellor is always one extra office member.
type Distribution struct {
	Union  int
	Office int
}

var RoleDistribution = map[int]Distribution{
	5:  {Union: 3, Office: 1},
	6:  {Union: 4, Office: 1},
	7:  {Union: 4, Office: 2},
	8:  {Union: 5, Office: 2},
	9:  {Union: 5, Office: 3},
	10: {Union: 6, Office: 3},
}

// PowerTable maps a table size to the power granted by the n-th office
// policy (index n-1). The sixth office policy ends the game instead.
var PowerTable = map[int][]Power{
	5:  {PowerNone, PowerNone, PowerPeek, PowerExecution, PowerExecution},
	6:  {PowerNone, PowerNone, PowerPeek, PowerExecution, PowerExecution},
	7:  {PowerNone, PowerInvestigate, PowerSpecialElection, PowerExecution, PowerExecution},
	8:  {PowerNone, PowerInvestigate, PowerSpecialElection, PowerExecution, PowerExecution},
	9:  {PowerInvestigate, PowerInvestigate, PowerSpecialElection, PowerExecution, PowerExecution},
	10: {PowerInvestigate, PowerInvestigate, PowerSpecialElection, PowerExecution, PowerExecution},
}

// PowerFor returns the power unlocked when the office track reaches
// officeEnacted cards at a table of the given size.
func PowerFor(players, officeEnacted int) Power {
	powers := PowerTable[players]
	if officeEnacted < 1 || officeEnacted > len(powers) {
		return PowerNone
	}
	return powers[officeEnacted-1]
}

var unionPolicyNames = []string{
	"Free Formals", "Lower Rent", "24/7 Library", "Student Voice", "Free Printing",
	"Exam Reform", "Mental Health", "Bike Lanes", "No Supervision", "Bar Prices ↓",
}

var officePolicyNames = []string{
	"Tuition ↑", "Library Cuts", "CCTV", "Ban Protests", "Rent ↑", "Gate Hours",
	"Formal Rules", "Supervision+", "Budget Cuts", "More Exams", "Curfew",
}
