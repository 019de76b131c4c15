package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func join(s *Session, cmd Command) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}
	if cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: missing participant id", ErrNotAuthorized)
	}
	if s.find(cmd.ActorID) != nil {
		return nil, ErrAlreadyJoined
	}
	if len(s.Participants) >= MaxPlayers {
		return nil, ErrSessionFull
	}

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(s.Participants)+1)
	}
	s.Participants = append(s.Participants, Participant{
		ID:        cmd.ActorID,
		Name:      name,
		Alive:     true,
		Connected: true,
	})

	events := []Event{{Type: EvtParticipantJoined, ActorID: cmd.ActorID}}
	if s.HostID == "" {
		s.HostID = cmd.ActorID
		events = append(events, Event{Type: EvtHostChanged, TargetID: cmd.ActorID})
	}
	return events, nil
}

// leave removes the participant while the match is still gathering. Once it
// has started seats are permanent, so leaving only drops the connection.
func leave(s *Session, cmd Command) ([]Event, error) {
	seat := s.seatOf(cmd.ActorID)
	if seat < 0 {
		return nil, ErrNotAuthorized
	}

	events := []Event{{Type: EvtParticipantLeft, ActorID: cmd.ActorID}}
	if s.Phase == PhaseLobby {
		s.Participants = append(s.Participants[:seat], s.Participants[seat+1:]...)
	} else {
		s.Participants[seat].Connected = false
	}
	if s.HostID == cmd.ActorID {
		events = append(events, s.reassignHost())
	}
	return events, nil
}

func setConnected(s *Session, cmd Command, connected bool) ([]Event, error) {
	p := s.find(cmd.ActorID)
	if p == nil {
		return nil, ErrNotAuthorized
	}
	p.Connected = connected

	var events []Event
	if connected {
		events = append(events, Event{Type: EvtConnected, ActorID: cmd.ActorID})
		if s.HostID == "" {
			s.HostID = cmd.ActorID
			events = append(events, Event{Type: EvtHostChanged, TargetID: cmd.ActorID})
		}
		return events, nil
	}

	events = append(events, Event{Type: EvtDisconnected, ActorID: cmd.ActorID})
	if s.HostID == cmd.ActorID {
		events = append(events, s.reassignHost())
	}
	return events, nil
}

// reassignHost hands hosting to the first connected participant, or clears
// it until somebody reconnects.
func (s *Session) reassignHost() Event {
	s.HostID = ""
	for _, p := range s.Participants {
		if p.Connected {
			s.HostID = p.ID
			break
		}
	}
	return Event{Type: EvtHostChanged, TargetID: s.HostID}
}

func postChat(s *Session, cmd Command) ([]Event, error) {
	p := s.find(cmd.ActorID)
	if p == nil {
		return nil, ErrNotAuthorized
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxChatRunes {
		text = string([]rune(text)[:MaxChatRunes])
	}

	s.ChatSeq++
	s.Chat = append(s.Chat, ChatLine{
		ID:            s.ChatSeq,
		ParticipantID: p.ID,
		Name:          p.Name,
		Text:          text,
		At:            cmd.At,
	})
	if over := len(s.Chat) - MaxChatLines; over > 0 {
		s.Chat = append([]ChatLine(nil), s.Chat[over:]...)
	}
	return []Event{{Type: EvtChatPosted, ActorID: p.ID}}, nil
}
