package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/camroulette/signaling/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimeout = time.Second
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrBadPayload      = errors.New("malformed payload")
)

type RoomSource interface {
	GetRoomByConnection(connID string) (*model.Room, error)
	AppendMessage(roomID string, msg model.ChatMessage)
}

// Relay forwards sdp, ice-candidate and chat-message payloads between the
// two participants of a room. SDP and ICE contents are never parsed; the
// relay is a pure forwarding channel and leaves their correctness to each
// peer's WebRTC stack.
type Relay struct {
	logger zerolog.Logger
	rooms  RoomSource
}

func New(rooms RoomSource, logger *zerolog.Logger) *Relay {
	return &Relay{
		logger: logger.With().Str("component", "relay").Logger(),
		rooms:  rooms,
	}
}

// Relay forwards the payload to the sender's role complement. Chat
// messages are re-tagged with the sender's room role server-side, so the
// receiver can tell self from stranger without trusting client identity
// strings.
func (rl *Relay) Relay(ctx context.Context, kind, fromConnID string, payload json.RawMessage) error {
	room, err := rl.rooms.GetRoomByConnection(fromConnID)
	if err != nil {
		return errors.Join(ErrNoActiveSession, err)
	}

	logger := rl.logger.With().
		Str("kind", kind).
		Str("from", fromConnID).
		Str("roomID", room.ID).Logger()

	if kind == model.EventChatMessage {
		payload, err = rl.tagChatMessage(room, fromConnID, payload)
		if err != nil {
			return err
		}
	}

	peer := room.Other(fromConnID)
	if !send(ctx, model.Envelope{Type: kind, Payload: payload}, peer.TX, &logger) {
		logger.Debug().Str("dst", peer.ID).Msg("payload was dropped, peer wire is not draining")
	}
	return nil
}

func (rl *Relay) tagChatMessage(room *model.Room, fromConnID string, payload json.RawMessage) (json.RawMessage, error) {
	var msg model.ChatMessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, errors.Join(ErrBadPayload, err)
	}
	msg.SenderRole = room.RoleOf(fromConnID)

	rl.rooms.AppendMessage(room.ID, model.ChatMessage{
		Text:       msg.Text,
		SenderRole: msg.SenderRole,
		SentAt:     time.Now(),
	})

	tagged, err := json.Marshal(&msg)
	if err != nil {
		return nil, errors.Join(ErrBadPayload, err)
	}
	return tagged, nil
}

func send(ctx context.Context, env model.Envelope, tx chan<- model.Envelope, logger *zerolog.Logger) bool {
	var sent bool
	tCh := time.NewTimer(defaultFwdTimeout)
	select {
	case <-ctx.Done():
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case tx <- env:
		sent = true
	}
	tCh.Stop()
	return sent
}
