package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/secret-chancellor/internal/engine"
	"github.com/DoyleJ11/secret-chancellor/internal/hub"
	"github.com/DoyleJ11/secret-chancellor/internal/lobby"
	"github.com/DoyleJ11/secret-chancellor/internal/types"
)

type Options struct {
	Logger *zap.Logger
	// AllowedOrigins are host patterns accepted besides same-origin requests.
	AllowedOrigins []string
	ChatRate       rate.Limit
	ChatBurst      int
	PingInterval   time.Duration
}

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 8
)

var errUnknownParticipant = errors.New("unknown participant")

// clientCommands are the message types a player may send. The wire names
// match the engine's command names.
var clientCommands = map[string]engine.CommandType{
	"Start":                    engine.CmdStart,
	"AcknowledgeRoles":         engine.CmdAcknowledgeRoles,
	"Nominate":                 engine.CmdNominate,
	"Vote":                     engine.CmdVote,
	"Discard":                  engine.CmdDiscard,
	"Enact":                    engine.CmdEnact,
	"Investigate":              engine.CmdInvestigate,
	"AcknowledgeInvestigation": engine.CmdAcknowledgeInvestigation,
	"Peek":                     engine.CmdPeek,
	"AcknowledgePeek":          engine.CmdAcknowledgePeek,
	"SpecialElection":          engine.CmdSpecialElection,
	"Execute":                  engine.CmdExecute,
	"Chat":                     engine.CmdChat,
}

const msgLeave = "Leave"

// Handler upgrades GET /ws?code=..&name=..[&participant=..]. Without a
// participant id the caller joins as a new participant; with one it
// reconnects to its seat.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ChatRate == 0 {
		opts.ChatRate = 2
	}
	if opts.ChatBurst == 0 {
		opts.ChatBurst = 5
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 20 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := hub.NormalizeCode(q.Get("code"))
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		lb, err := h.Get(code)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		if lb == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		participantID, err := admit(r.Context(), h, lb, code, q.Get("participant"), q.Get("name"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		log := opts.Logger.With(zap.String("code", code), zap.String("participant", participantID))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.AllowedOrigins,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			post(lb, lobby.Leave{ParticipantID: participantID, Exit: engine.CmdDisconnect})
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx := r.Context()
		if err := write(ctx, conn, types.ServerMessage{Type: types.MsgWelcome, ParticipantID: participantID}); err != nil {
			post(lb, lobby.Leave{ParticipantID: participantID, Exit: engine.CmdDisconnect})
			return
		}

		out := make(chan lobby.Snapshot, outboxSize)
		clientID := uuid.NewString()
		post(lb, lobby.Join{ClientID: clientID, ParticipantID: participantID, Outbox: out})
		log.Info("client connected")

		leaving := false
		defer func() {
			exit := engine.CmdDisconnect
			if leaving {
				exit = engine.CmdLeave
			}
			// the lobby only applies exit once no other tab holds the seat
			post(lb, lobby.Leave{ClientID: clientID, ParticipantID: participantID, Exit: exit})
			log.Info("client disconnected", zap.Bool("left", leaving))
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(ctx)
		defer writeCancel()
		go func() {
			ping := time.NewTicker(opts.PingInterval)
			defer ping.Stop()
			for {
				select {
				case snap, ok := <-out:
					if !ok {
						// the lobby dropped us or shut down
						_ = conn.Close(websocket.StatusGoingAway, "match closed")
						return
					}
					if err := write(writeCtx, conn, toServerMessage(snap)); err != nil {
						log.Debug("write failed", zap.Error(err))
						return
					}
				case <-ping.C:
					pctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := conn.Ping(pctx)
					cancel()
					if err != nil {
						return
					}
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader loop
		limiter := rate.NewLimiter(opts.ChatRate, opts.ChatBurst)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeError(ctx, conn, "BadRequest", "bad json")
				continue
			}
			if cm.Type == msgLeave {
				leaving = true
				return
			}

			cmd, ok := toEngineCommand(cm, participantID)
			if !ok {
				_ = writeError(ctx, conn, "BadRequest", "unknown type")
				continue
			}
			if cmd.Type == engine.CmdChat && !limiter.Allow() {
				_ = writeError(ctx, conn, "RateLimited", "too many chat messages")
				continue
			}

			if !post(lb, lobby.FromClient{ClientID: clientID, Cmd: cmd}) {
				return
			}
		}
	}
}

// admit seats a new participant or reconnects a returning one and returns
// the participant id the connection acts as.
func admit(ctx context.Context, h *hub.Hub, lb *lobby.Lobby, code, participantID, name string) (string, error) {
	if participantID != "" {
		bound, err := h.Lookup(participantID)
		if err != nil {
			return "", err
		}
		if bound != code {
			return "", errUnknownParticipant
		}
		err = lb.Submit(ctx, "", engine.Command{Type: engine.CmdConnect, ActorID: participantID})
		if errors.Is(err, engine.ErrNotAuthorized) {
			// they left the lobby before the match started
			h.Send(hub.UnbindParticipant{ParticipantID: participantID})
			return "", errUnknownParticipant
		}
		if err != nil {
			return "", err
		}
		return participantID, nil
	}

	id := uuid.NewString()
	if err := lb.Submit(ctx, "", engine.Command{Type: engine.CmdJoin, ActorID: id, Name: name}); err != nil {
		return "", err
	}
	if !h.Send(hub.BindParticipant{ParticipantID: id, Code: code}) {
		return "", hub.ErrClosed
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownParticipant):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrSessionFull), errors.Is(err, engine.ErrWrongPhase), errors.Is(err, engine.ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrClosed):
		return http.StatusGone
	case errors.Is(err, hub.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toEngineCommand(m types.ClientMessage, actorID string) (engine.Command, bool) {
	t, ok := clientCommands[m.Type]
	if !ok {
		return engine.Command{}, false
	}
	return engine.Command{
		Type:     t,
		ActorID:  actorID,
		TargetID: m.TargetID,
		Index:    m.Index,
		Approve:  m.Approve,
		Text:     m.Text,
	}, true
}

func toServerMessage(snap lobby.Snapshot) types.ServerMessage {
	if snap.Err != nil {
		return types.ServerMessage{
			Type:    types.MsgError,
			Version: snap.Version,
			Code:    engine.Kind(snap.Err),
			Error:   snap.Err.Error(),
		}
	}
	msg := types.ServerMessage{Type: types.MsgStateSnapshot, Version: snap.Version, View: &snap.View}
	if !snap.Deadline.IsZero() {
		deadline := snap.Deadline
		msg.Deadline = &deadline
	}
	return msg
}

// post hands msg to the lobby unless it has already stopped.
func post(lb *lobby.Lobby, msg lobby.Msg) bool {
	select {
	case lb.Inbox() <- msg:
		return true
	case <-lb.Done():
		return false
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func writeError(ctx context.Context, conn *websocket.Conn, code, text string) error {
	return write(ctx, conn, types.ServerMessage{Type: types.MsgError, Code: code, Error: text})
}
