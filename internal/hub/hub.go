package hub

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DoyleJ11/secret-chancellor/internal/engine"
	"github.com/DoyleJ11/secret-chancellor/internal/lobby"
)

// ErrClosed is returned by the request helpers once the hub has shut down.
var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateLobby starts a lobby for a fresh match, or returns the existing one.
type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby // nil lobby when unknown
}

type RemoveLobby struct {
	Code string
}

// BindParticipant records which match a participant id belongs to.
type BindParticipant struct {
	ParticipantID string
	Code          string
}

type LookupParticipant struct {
	ParticipantID string
	Reply         chan string // "" when unbound
}

type UnbindParticipant struct {
	ParticipantID string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg()       {}
func (GetLobby) isHubMsg()          {}
func (RemoveLobby) isHubMsg()       {}
func (BindParticipant) isHubMsg()   {}
func (LookupParticipant) isHubMsg() {}
func (UnbindParticipant) isHubMsg() {}
func (ShutdownHub) isHubMsg()       {}

type Hub struct {
	inbox        chan HubMsg
	lobbies      map[string]*lobby.Lobby
	participants map[string]string // participant id -> code
	opts         lobby.Options
	log          *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewHub starts the registry. opts is the template for every lobby it
// creates.
func NewHub(parent context.Context, opts lobby.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:        make(chan HubMsg, 64),
		lobbies:      make(map[string]*lobby.Lobby),
		participants: make(map[string]string),
		opts:         opts,
		log:          opts.Logger,
		ctx:          ctx,
		cancel:       cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Send hands msg to the hub unless it has already shut down.
func (h *Hub) Send(msg HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- msg:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// await waits for the answer to a message accepted by Send. A hub that shuts
// down with the message still queued never answers.
func await[T any](h *Hub, reply chan T) (T, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
		}
		var zero T
		return zero, ErrClosed
	}
}

func request[T any](h *Hub, msg HubMsg, reply chan T) (T, error) {
	if !h.Send(msg) {
		var zero T
		return zero, ErrClosed
	}
	return await(h, reply)
}

// Create starts a lobby for code, or returns the one already running.
func (h *Hub) Create(code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return request(h, CreateLobby{Code: code, Reply: reply}, reply)
}

// Get returns the lobby for code, or nil when there is none.
func (h *Hub) Get(code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return request(h, GetLobby{Code: code, Reply: reply}, reply)
}

// Lookup returns the code a participant is bound to, or "".
func (h *Hub) Lookup(participantID string) (string, error) {
	reply := make(chan string, 1)
	return request(h, LookupParticipant{ParticipantID: participantID, Reply: reply}, reply)
}

// NormalizeCode makes join codes case-insensitive.
func NormalizeCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				code := NormalizeCode(msg.Code)
				if lb := h.lobbies[code]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, engine.NewSession(code), h.lobbyOptions())
				h.lobbies[code] = lb
				h.log.Info("match created", zap.String("code", code))
				msg.Reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[NormalizeCode(msg.Code)] // May be nil

			case RemoveLobby:
				code := NormalizeCode(msg.Code)
				lb := h.lobbies[code]
				if lb == nil {
					break
				}
				delete(h.lobbies, code)
				for id, c := range h.participants {
					if c == code {
						delete(h.participants, id)
					}
				}
				stop(lb)
				h.log.Info("match removed", zap.String("code", code))

			case BindParticipant:
				h.participants[msg.ParticipantID] = NormalizeCode(msg.Code)

			case LookupParticipant:
				msg.Reply <- h.participants[msg.ParticipantID]

			case UnbindParticipant:
				delete(h.participants, msg.ParticipantID)

			case ShutdownHub:
				for _, lb := range h.lobbies {
					stop(lb)
				}
				clear(h.lobbies)
				clear(h.participants)
				h.cancel()
			}
		}
	}
}

// lobbyOptions hands each lobby a way to ask for its own removal. Lobbies
// never share a randomness source.
func (h *Hub) lobbyOptions() lobby.Options {
	opts := h.opts
	opts.Rand = nil
	opts.OnEmpty = func(code string) {
		go h.Send(RemoveLobby{Code: code})
	}
	return opts
}

func stop(lb *lobby.Lobby) {
	select {
	case lb.Inbox() <- lobby.Shutdown{}:
	case <-lb.Done():
	}
}
