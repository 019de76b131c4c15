package lobby

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/secret-chancellor/internal/engine"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got version %d phase %s", within, s.Version, s.View.Phase)
	case <-time.After(within):
		// good: no snapshot
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func getState(t *testing.T, l *Lobby) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	return recvView(t, reply, 200*time.Millisecond)
}

func testOptions() Options {
	return Options{
		RoleRevealDelay: time.Hour,
		Rand:            rand.New(rand.NewPCG(1, 2)),
	}
}

func pid(i int) string { return fmt.Sprintf("p%d", i) }

// seated builds a lobby-phase session with n participants, p1 hosting.
func seated(t *testing.T, n int) engine.Session {
	t.Helper()
	e := engine.New(rand.New(rand.NewPCG(3, 4)))
	s := engine.NewSession("ROOM42")
	for i := 1; i <= n; i++ {
		var err error
		_, s, err = e.Apply(s, engine.Command{Type: engine.CmdJoin, ActorID: pid(i), Name: fmt.Sprintf("Player %d", i)})
		require.NoError(t, err)
	}
	return s
}

func started(t *testing.T, n int) engine.Session {
	t.Helper()
	e := engine.New(rand.New(rand.NewPCG(5, 6)))
	_, s, err := e.Apply(seated(t, n), engine.Command{Type: engine.CmdStart, ActorID: pid(1)})
	require.NoError(t, err)
	return s
}

func TestLobby_Command_BroadcastsSnapshotAndVersionIncrements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, engine.NewSession("ROOM42"), testOptions())

	clientOut := make(chan Snapshot, 2) // small buffer so broadcast doesn’t block
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: "ada", Outbox: clientOut}

	first := recvSnapshot(t, clientOut, 100*time.Millisecond)
	require.Equal(t, 0, first.Version)
	require.Empty(t, first.View.Participants)

	err := l.Submit(ctx, "c1", engine.Command{Type: engine.CmdJoin, ActorID: "ada", Name: "Ada"})
	require.NoError(t, err)

	next := recvSnapshot(t, clientOut, 100*time.Millisecond)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, "ada", next.View.ViewerID)
	assert.Equal(t, "ada", next.View.HostID)
	require.Len(t, next.View.Participants, 1)
	assert.NoError(t, next.Err)

	l.Inbox() <- Shutdown{}
}

func TestLobby_RejectionGoesOnlyToSender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, seated(t, 5), testOptions())
	host := make(chan Snapshot, 4)
	guest := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: host}
	l.Inbox() <- Join{ClientID: "c2", ParticipantID: pid(2), Outbox: guest}
	_ = recvSnapshot(t, host, 100*time.Millisecond)
	_ = recvSnapshot(t, guest, 100*time.Millisecond)

	l.Inbox() <- FromClient{ClientID: "c2", Cmd: engine.Command{Type: engine.CmdStart, ActorID: pid(2)}}

	rejected := recvSnapshot(t, guest, 200*time.Millisecond)
	require.ErrorIs(t, rejected.Err, engine.ErrNotAuthorized)
	assert.Equal(t, 0, rejected.Version)
	assert.Equal(t, engine.PhaseLobby, rejected.View.Phase)
	recvNoSnapshot(t, host, 100*time.Millisecond)

	err := l.Submit(ctx, "c2", engine.Command{Type: engine.CmdStart, ActorID: pid(2)})
	require.ErrorIs(t, err, engine.ErrNotAuthorized)
	recvNoSnapshot(t, guest, 100*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, engine.NewSession("ROOM42"), testOptions())

	clientOut := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: "ada", Outbox: clientOut}
	l.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdJoin, ActorID: "ada", Name: "Ada"}}

	view := getState(t, l)
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	assert.Equal(t, 1, view.Version)
}

func TestLobby_ProjectsPerViewer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, seated(t, 5), testOptions())
	outs := make([]chan Snapshot, 5)
	for i := range outs {
		outs[i] = make(chan Snapshot, 4)
		l.Inbox() <- Join{ClientID: fmt.Sprintf("c%d", i+1), ParticipantID: pid(i + 1), Outbox: outs[i]}
		_ = recvSnapshot(t, outs[i], 100*time.Millisecond)
	}

	require.NoError(t, l.Submit(ctx, "c1", engine.Command{Type: engine.CmdStart, ActorID: pid(1)}))
	session := getState(t, l).Session

	for i, out := range outs {
		snap := recvSnapshot(t, out, 200*time.Millisecond)
		me, ok := session.Participant(pid(i + 1))
		require.True(t, ok)
		assert.Equal(t, engine.PhaseRoleReveal, snap.View.Phase)
		assert.Equal(t, me.Role, snap.View.ViewerRole)
		assert.False(t, snap.Deadline.IsZero())
		if me.Role != engine.RoleStudentUnion {
			continue
		}
		for _, pv := range snap.View.Participants {
			if pv.ID != me.ID {
				assert.Empty(t, pv.Role, "%s sees the role of %s", me.ID, pv.ID)
			}
		}
	}
}

func TestLobby_TimerFires_RoleRevealElapsedEmitsSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.RoleRevealDelay = 50 * time.Millisecond
	l := NewLobby(ctx, seated(t, 5), opts)

	clientOut := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: clientOut}
	first := recvSnapshot(t, clientOut, 100*time.Millisecond)
	require.Equal(t, 0, first.Version)

	l.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{Type: engine.CmdStart, ActorID: pid(1)}}
	reveal := recvSnapshot(t, clientOut, 100*time.Millisecond)
	require.Equal(t, engine.PhaseRoleReveal, reveal.View.Phase)

	next := recvSnapshot(t, clientOut, 500*time.Millisecond)
	if next.Version != 2 {
		t.Fatalf("after role reveal timer: want version=2, got %d", next.Version)
	}
	if next.View.Phase != engine.PhaseNominating {
		t.Fatalf("after role reveal timer: want phase nominating, got %v", next.View.Phase)
	}
}

func TestLobby_PrimeTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.RoleRevealDelay = 20 * time.Millisecond
	l := NewLobby(ctx, started(t, 5), opts)

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- PrimeTimer{}
	next := recvSnapshot(t, out, 500*time.Millisecond)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, engine.PhaseNominating, next.View.Phase)
}

func TestLobby_TimerGen_DropsStaleFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.RoleRevealDelay = 300 * time.Millisecond
	l := NewLobby(ctx, started(t, 5), opts)

	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond) // version 0

	// Arm timer #1, then supersede it before it fires.
	l.Inbox() <- PrimeTimer{}
	time.Sleep(150 * time.Millisecond)
	l.Inbox() <- PrimeTimer{}

	// #1 would have fired around now.
	recvNoSnapshot(t, out, 250*time.Millisecond)

	next := recvSnapshot(t, out, time.Second)
	if next.Version != 1 {
		t.Fatalf("want version=1 after the re-armed timer fires, got %d", next.Version)
	}
	recvNoSnapshot(t, out, 400*time.Millisecond)

	l.Inbox() <- Shutdown{}
}

func TestLobby_AcknowledgeBeatsTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.RoleRevealDelay = 100 * time.Millisecond
	l := NewLobby(ctx, started(t, 5), opts)

	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- PrimeTimer{}
	l.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{Type: engine.CmdAcknowledgeRoles, ActorID: pid(1)}}
	acked := recvSnapshot(t, out, 100*time.Millisecond)
	require.Equal(t, engine.PhaseNominating, acked.View.Phase)

	// the timer was superseded; nothing else may arrive
	recvNoSnapshot(t, out, 300*time.Millisecond)
	assert.Equal(t, 1, getState(t, l).Version)
}

func TestLobby_Shutdown_StopsTimer_NoFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.RoleRevealDelay = 200 * time.Millisecond
	l := NewLobby(ctx, started(t, 5), opts)

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: out}
	_ = recvSnapshot(t, out, 500*time.Millisecond) // drain join snapshot

	// Arm timer and immediately shut down
	l.Inbox() <- PrimeTimer{}
	l.Inbox() <- Shutdown{}

	recvNoSnapshot(t, out, 400*time.Millisecond)
	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby did not stop")
	}
	require.ErrorIs(t, l.Submit(ctx, "c1", engine.Command{Type: engine.CmdChat}), ErrClosed)
}

func TestLobby_StampsCommandsWithClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	at := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	opts := testOptions()
	opts.Now = func() time.Time { return at }
	opts.PhaseDuration = time.Minute
	l := NewLobby(ctx, seated(t, 5), opts)

	require.NoError(t, l.Submit(ctx, "", engine.Command{Type: engine.CmdChat, ActorID: pid(3), Text: "hello"}))
	require.NoError(t, l.Submit(ctx, "", engine.Command{Type: engine.CmdStart, ActorID: pid(1)}))

	out := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(3), Outbox: out}
	snap := recvSnapshot(t, out, 100*time.Millisecond)
	require.Len(t, snap.View.Chat, 1)
	assert.Equal(t, at, snap.View.Chat[0].At)
	assert.Equal(t, at.Add(time.Minute), snap.Deadline)
}

type fakeRecorder struct {
	got chan engine.Session
}

func (f fakeRecorder) Record(_ context.Context, s engine.Session) error {
	f.got <- s
	return nil
}

func TestLobby_RecordsFinishedMatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := started(t, 5)
	leader := slices.IndexFunc(s.Participants, func(p engine.Participant) bool { return p.Role == engine.RoleChancellor })
	proposer := (leader + 1) % len(s.Participants)
	for i := range s.Participants {
		s.Participants[i].IsProposer = i == proposer
	}
	s.ProposerIndex = proposer
	s.Phase = engine.PhaseExecutiveAction
	s.PendingPower = engine.PowerExecution

	rec := fakeRecorder{got: make(chan engine.Session, 1)}
	opts := testOptions()
	opts.Recorder = rec
	l := NewLobby(ctx, s, opts)

	err := l.Submit(ctx, "", engine.Command{
		Type:     engine.CmdExecute,
		ActorID:  s.Participants[proposer].ID,
		TargetID: s.Participants[leader].ID,
	})
	require.NoError(t, err)

	select {
	case finished := <-rec.got:
		assert.Equal(t, engine.PhaseGameOver, finished.Phase)
		assert.Equal(t, engine.FactionUnion, finished.Winner)
	case <-time.After(time.Second):
		t.Fatalf("recorder was not called")
	}
}

func TestLobby_OnEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emptied := make(chan string, 1)
	opts := testOptions()
	opts.OnEmpty = func(code string) { emptied <- code }
	l := NewLobby(ctx, seated(t, 1), opts)

	require.NoError(t, l.Submit(ctx, "", engine.Command{Type: engine.CmdLeave, ActorID: pid(1)}))
	select {
	case code := <-emptied:
		assert.Equal(t, "ROOM42", code)
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty was not called")
	}
}

func seat(t *testing.T, l *Lobby, id string) engine.Participant {
	t.Helper()
	p, ok := getState(t, l).Session.Participant(id)
	require.True(t, ok, "no seat for %s", id)
	return p
}

func TestLobby_LeaveDisconnectsOnlyTheLastClientOfASeat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, seated(t, 2), testOptions())
	tab1 := make(chan Snapshot, 4)
	tab2 := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: tab1}
	l.Inbox() <- Join{ClientID: "c2", ParticipantID: pid(1), Outbox: tab2}
	recvSnapshot(t, tab1, 100*time.Millisecond)
	recvSnapshot(t, tab2, 100*time.Millisecond)

	l.Inbox() <- Leave{ClientID: "c1", ParticipantID: pid(1), Exit: engine.CmdDisconnect}
	recvNoSnapshot(t, tab2, 100*time.Millisecond)
	p := seat(t, l, pid(1))
	assert.True(t, p.Connected)
	assert.Equal(t, pid(1), getState(t, l).Session.HostID)

	l.Inbox() <- Leave{ClientID: "c2", ParticipantID: pid(1), Exit: engine.CmdDisconnect}
	state := getState(t, l)
	p, _ = state.Session.Participant(pid(1))
	assert.False(t, p.Connected)
	assert.Equal(t, pid(2), state.Session.HostID)
	assert.Equal(t, 0, state.NumClients)
}

func TestLobby_JoinBringsOfflineSeatBackOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, seated(t, 2), testOptions())
	require.NoError(t, l.Submit(ctx, "", engine.Command{Type: engine.CmdDisconnect, ActorID: pid(2)}))
	require.False(t, seat(t, l, pid(2)).Connected)

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(2), Outbox: out}
	snap := recvSnapshot(t, out, 100*time.Millisecond)
	assert.Equal(t, 2, snap.Version)
	for _, p := range snap.View.Participants {
		assert.True(t, p.Connected, p.ID)
	}
	recvNoSnapshot(t, out, 50*time.Millisecond)
}

func TestLobby_IdleLobbyReportsEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emptied := make(chan string, 1)
	opts := testOptions()
	opts.IdleTimeout = 50 * time.Millisecond
	opts.OnEmpty = func(code string) { emptied <- code }
	NewLobby(ctx, engine.NewSession("IDLE01"), opts)

	select {
	case code := <-emptied:
		assert.Equal(t, "IDLE01", code)
	case <-time.After(time.Second):
		t.Fatalf("never-joined lobby was not reported")
	}
}

func TestLobby_AttachedClientKeepsLobbyAlive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emptied := make(chan string, 1)
	opts := testOptions()
	opts.IdleTimeout = 100 * time.Millisecond
	opts.OnEmpty = func(code string) { emptied <- code }
	l := NewLobby(ctx, seated(t, 1), opts)

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", ParticipantID: pid(1), Outbox: out}
	recvSnapshot(t, out, 100*time.Millisecond)

	select {
	case <-emptied:
		t.Fatalf("lobby with a client was reported idle")
	case <-time.After(250 * time.Millisecond):
	}

	// idleness is measured again from the last client leaving
	l.Inbox() <- Leave{ClientID: "c1"}
	select {
	case code := <-emptied:
		assert.Equal(t, "ROOM42", code)
	case <-time.After(time.Second):
		t.Fatalf("lobby was not reported after its last client left")
	}
}
