package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/secret-chancellor/internal/hub"
	"github.com/DoyleJ11/secret-chancellor/internal/lobby"
	"github.com/DoyleJ11/secret-chancellor/internal/types"
)

const (
	codeLength   = 6
	maxCodeTries = 16
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateMatch(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for try := 0; code == "" && try < maxCodeTries; try++ {
			c, err := GenerateCode()
			if err != nil {
				log.Error("generate code", zap.Error(err))
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			existing, err := h.Get(c)
			if err != nil {
				http.Error(w, "server shutting down", http.StatusServiceUnavailable)
				return
			}
			if existing == nil {
				code = c
				break
			}
			log.Debug("collision on code, regenerating", zap.String("code", c))
		}
		if code == "" {
			http.Error(w, "no free match code", http.StatusServiceUnavailable)
			return
		}

		if _, err := h.Create(code); err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

// GetMatch returns the public summary of a match. Nothing secret is in it.
func GetMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Get(chi.URLParam(r, "code"))
		if errors.Is(err, hub.ErrClosed) {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		state := make(chan lobby.View, 1)
		select {
		case lb.Inbox() <- lobby.GetState{Reply: state}:
		case <-lb.Done():
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		var v lobby.View
		select {
		case v = <-state:
		case <-lb.Done():
			http.Error(w, "match not found", http.StatusNotFound)
			return
		case <-r.Context().Done():
			return
		}

		summary := types.MatchSummary{
			Code:    v.Session.Code,
			Phase:   v.Session.Phase,
			Players: len(v.Session.Participants),
			Version: v.Version,
			Winner:  v.Session.Winner,
		}
		for _, p := range v.Session.Participants {
			if p.Connected {
				summary.Connected++
			}
			if p.ID == v.Session.HostID {
				summary.HostName = p.Name
			}
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
