package lobby

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/secret-chancellor/internal/engine"
)

// ErrClosed is returned by Submit once the lobby has stopped.
var ErrClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// FromClient carries one engine command. A rejection is sent to Reply when
// it is set, otherwise to the sending client's outbox.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
	Reply    chan error
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID      string
	ParticipantID string        // whose view this client receives
	Outbox        chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

// Leave detaches a client. Exit, when set, is applied for ParticipantID once
// no other client is attached to that seat.
type Leave struct {
	ClientID      string
	ParticipantID string
	Exit          engine.CommandType
}

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// PrimeTimer arms the role reveal timer as if RoleReveal had just begun.
type PrimeTimer struct{}

func (PrimeTimer) isLobbyMsg() {}

type timerFired struct{ gen int }

func (timerFired) isLobbyMsg() {}

type idleFired struct{ gen int }

func (idleFired) isLobbyMsg() {}

// Snapshot is what one client sees after a change. Err is set when the
// client's own command was rejected; View is then the unchanged state.
type Snapshot struct {
	Version  int
	View     engine.View
	Deadline time.Time
	Err      error
}

type View struct {
	Version    int
	NumClients int
	Session    engine.Session
}

// Recorder archives finished matches.
type Recorder interface {
	Record(ctx context.Context, s engine.Session) error
}

type Options struct {
	Logger          *zap.Logger
	Recorder        Recorder
	RoleRevealDelay time.Duration
	PhaseDuration   time.Duration
	Now             func() time.Time
	Rand            engine.Source
	// IdleTimeout is how long the lobby may go without any attached client
	// before it reports itself empty.
	IdleTimeout time.Duration
	// OnEmpty is called from the lobby goroutine once the roster is empty or
	// the lobby has been idle for IdleTimeout.
	OnEmpty func(code string)
}

const (
	DefaultRoleRevealDelay = 10 * time.Second
	DefaultPhaseDuration   = 60 * time.Second
	DefaultIdleTimeout     = 10 * time.Minute

	recordTimeout = 10 * time.Second
)

type client struct {
	participantID string
	outbox        chan Snapshot
}

type Lobby struct {
	inbox    chan Msg
	eng      *engine.Engine
	session  engine.Session
	version  int
	deadline time.Time
	clients  map[string]client
	timer    *time.Timer
	timerGen int
	idle     *time.Timer
	idleGen  int
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewLobby(parent context.Context, initial engine.Session, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RoleRevealDelay == 0 {
		opts.RoleRevealDelay = DefaultRoleRevealDelay
	}
	if opts.PhaseDuration == 0 {
		opts.PhaseDuration = DefaultPhaseDuration
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	l := &Lobby{
		inbox:   make(chan Msg, 64), // Small buffer
		eng:     engine.New(opts.Rand),
		session: initial,
		clients: make(map[string]client),
		opts:    opts,
		log:     opts.Logger.With(zap.String("code", initial.Code)),
		ctx:     ctx,
		cancel:  cancel,
	}

	l.armIdle()
	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				c := client{participantID: msg.ParticipantID, outbox: msg.Outbox}
				l.clients[msg.ClientID] = c
				l.stopIdle()
				// A seat that went offline while this client was being
				// admitted comes back online with it.
				if p, ok := l.session.Participant(msg.ParticipantID); ok && !p.Connected {
					connect := engine.Command{Type: engine.CmdConnect, ActorID: msg.ParticipantID}
					if l.apply(FromClient{ClientID: msg.ClientID, Cmd: connect}) == nil {
						break
					}
				}
				l.send(msg.ClientID, c, l.snapshot(c, nil))

			case Leave:
				if c, ok := l.clients[msg.ClientID]; ok {
					close(c.outbox)
					delete(l.clients, msg.ClientID)
				}
				if msg.Exit != "" && msg.ParticipantID != "" && !l.attached(msg.ParticipantID) {
					l.apply(FromClient{Cmd: engine.Command{Type: msg.Exit, ActorID: msg.ParticipantID}})
				}
				if len(l.clients) == 0 {
					l.armIdle()
				}

			case FromClient:
				l.apply(msg)

			case PrimeTimer:
				l.armTimer()

			case idleFired:
				if msg.gen != l.idleGen || len(l.clients) > 0 {
					break
				}
				l.idle = nil
				l.log.Info("lobby idle, closing", zap.Duration("idle", l.opts.IdleTimeout))
				if l.opts.OnEmpty != nil {
					l.opts.OnEmpty(l.session.Code)
				}

			case timerFired:
				if msg.gen != l.timerGen {
					break
				}
				l.timer = nil
				l.apply(FromClient{Cmd: engine.Command{Type: engine.CmdRoleRevealElapsed}})

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					Session:    l.session.Clone(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) apply(msg FromClient) error {
	cmd := msg.Cmd
	cmd.At = l.opts.Now()

	events, next, err := l.eng.Apply(l.session, cmd)
	if msg.Reply != nil {
		msg.Reply <- err
	}
	if err != nil {
		l.log.Debug("command rejected",
			zap.String("cmd", string(cmd.Type)),
			zap.String("participant", cmd.ActorID),
			zap.Error(err))
		if msg.Reply == nil {
			if c, ok := l.clients[msg.ClientID]; ok {
				l.send(msg.ClientID, c, l.snapshot(c, err))
			}
		}
		return err
	}

	prev := l.session.Phase
	l.session = next
	l.version++

	if next.Phase != prev {
		l.deadline = l.opts.Now().Add(l.opts.PhaseDuration)
		l.log.Info("phase changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next.Phase)),
			zap.Int("version", l.version))
	}
	switch {
	case engine.ContainsEvent(events, engine.EvtGameStarted):
		l.armTimer()
	case next.Phase != engine.PhaseRoleReveal:
		l.stopTimer()
	}
	if engine.ContainsEvent(events, engine.EvtGameOver) {
		l.log.Info("match finished",
			zap.String("winner", string(next.Winner)),
			zap.String("reason", next.WinReason))
		l.record(next.Clone())
	}

	l.broadcast()

	if len(next.Participants) == 0 && l.opts.OnEmpty != nil {
		l.opts.OnEmpty(next.Code)
	}
	return nil
}

// attached reports whether any client still serves participantID.
func (l *Lobby) attached(participantID string) bool {
	for _, c := range l.clients {
		if c.participantID == participantID {
			return true
		}
	}
	return false
}

func (l *Lobby) armIdle() {
	l.stopIdle()
	l.idleGen++
	gen := l.idleGen
	l.idle = time.AfterFunc(l.opts.IdleTimeout, func() {
		select {
		case l.inbox <- idleFired{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

func (l *Lobby) stopIdle() {
	if l.idle != nil {
		l.idle.Stop()
		l.idle = nil
	}
}

func (l *Lobby) armTimer() {
	l.stopTimer()
	l.timerGen++
	gen := l.timerGen
	l.timer = time.AfterFunc(l.opts.RoleRevealDelay, func() {
		select {
		case l.inbox <- timerFired{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

func (l *Lobby) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Lobby) record(s engine.Session) {
	if l.opts.Recorder == nil {
		return
	}
	rec, log := l.opts.Recorder, l.log
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(l.ctx), recordTimeout)
		defer cancel()
		if err := rec.Record(ctx, s); err != nil {
			log.Warn("archive match failed", zap.Error(err))
		}
	}()
}

func (l *Lobby) snapshot(c client, err error) Snapshot {
	return Snapshot{
		Version:  l.version,
		View:     engine.Project(l.session, c.participantID),
		Deadline: l.deadline,
		Err:      err,
	}
}

func (l *Lobby) shutdown() {
	l.stopTimer()
	l.stopIdle()
	for id, c := range l.clients {
		close(c.outbox) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

// send delivers without blocking. A client whose outbox is full is dropped.
func (l *Lobby) send(id string, c client, snap Snapshot) {
	select {
	case c.outbox <- snap:
	default:
		l.log.Warn("dropping slow client",
			zap.String("client", id),
			zap.String("participant", c.participantID))
		close(c.outbox)
		delete(l.clients, id)
	}
}

// broadcast projects the session separately for every client.
func (l *Lobby) broadcast() {
	for id, c := range l.clients {
		l.send(id, c, l.snapshot(c, nil))
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Submit sends cmd and waits for the engine's verdict.
func (l *Lobby) Submit(ctx context.Context, clientID string, cmd engine.Command) error {
	reply := make(chan error, 1)
	select {
	case l.inbox <- FromClient{ClientID: clientID, Cmd: cmd, Reply: reply}:
	case <-l.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-l.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
