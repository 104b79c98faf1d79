package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/camroulette/signaling/backend/matchmaking"
	"github.com/camroulette/signaling/backend/model"
	"github.com/camroulette/signaling/backend/relay"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	defaultNotifyTimeout = time.Second
)

var (
	ErrNotFound        = errors.New("unknown connection")
	ErrNoActiveSession = errors.New("no active session")
	ErrRelay           = errors.New("unable to relay")
)

type (
	Registry interface {
		Register(connID, userID string) *model.Connection
		Unregister(connID string) error
		Get(connID string) (*model.Connection, error)
		Connections() []*model.Connection
		Count() int
	}

	RoomStore interface {
		CreateRoom(match *model.Match) *model.Room
		GetRoomByConnection(connID string) (*model.Room, error)
		CloseRoom(roomID string)
		Count() int
		Rooms() []*model.Room
	}

	Relay interface {
		Relay(ctx context.Context, kind, fromConnID string, payload json.RawMessage) error
	}

	// Service is the lifecycle controller: it reacts to connect,
	// start-matching, signaling, end, next and disconnect events and drives
	// the queue, the room store and the relay. Every state transition runs
	// under one lock, which is the single mutual-exclusion domain over the
	// queue and the room set: two concurrent arrivals can never both match
	// the same waiting entry.
	Service struct {
		logger   zerolog.Logger
		mx       *sync.Mutex
		registry Registry
		queue    *matchmaking.Queue
		matcher  *matchmaking.Matcher
		store    RoomStore
		relay    Relay
	}

	Config struct {
		Registry  Registry
		Queue     *matchmaking.Queue
		Matcher   *matchmaking.Matcher
		RoomStore RoomStore
		Relay     Relay
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		logger:   cfg.Logger.With().Str("component", "lifecycle").Logger(),
		mx:       &sync.Mutex{},
		registry: cfg.Registry,
		queue:    cfg.Queue,
		matcher:  cfg.Matcher,
		store:    cfg.RoomStore,
		relay:    cfg.Relay,
	}
}

// Connect registers a new connection in Idle state and announces the new
// online count to everyone.
func (svc *Service) Connect(ctx context.Context, connID, userID string) *model.Connection {
	conn := svc.registry.Register(connID, userID)
	svc.logger.Debug().
		Str("connID", connID).
		Str("userID", userID).
		Msg("connection registered")
	svc.broadcastOnline(ctx)
	return conn
}

// Disconnect is the highest-priority cleanup path and the only exit from
// the per-connection state machine. It is idempotent: a second call for
// the same id is a no-op.
func (svc *Service) Disconnect(ctx context.Context, connID string) {
	svc.mx.Lock()

	conn, err := svc.registry.Get(connID)
	if err != nil {
		svc.mx.Unlock()
		return
	}

	svc.queue.Remove(connID)
	if conn.State == model.StateMatched {
		svc.teardownRoomLocked(ctx, conn)
	}
	_ = svc.registry.Unregister(connID)
	svc.mx.Unlock()

	svc.logger.Debug().Str("connID", connID).Msg("connection unregistered")
	svc.broadcastOnline(ctx)
}

// StartMatching moves the connection into the queue and attempts a pairing.
// A connection that is already matched force-closes its current room first;
// one that is already queued simply replaces its previous entry.
func (svc *Service) StartMatching(ctx context.Context, connID string, filters model.Filters) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	conn, err := svc.registry.Get(connID)
	if err != nil {
		return errors.Join(ErrNotFound, err)
	}
	if conn.State == model.StateMatched {
		svc.teardownRoomLocked(ctx, conn)
	}

	conn.Filters = filters.WithDefaults()
	svc.matchLocked(ctx, conn, conn.Filters)
	return nil
}

// EndChat terminates the initiator's session. Both sides return to Idle;
// only the non-initiating peer is notified.
func (svc *Service) EndChat(ctx context.Context, connID string) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	conn, err := svc.registry.Get(connID)
	if err != nil {
		return errors.Join(ErrNotFound, err)
	}
	if conn.State != model.StateMatched {
		return ErrNoActiveSession
	}
	svc.teardownRoomLocked(ctx, conn)
	return nil
}

// NextChat terminates the initiator's session and immediately re-enters
// matching with the filters it queued with last time. The peer goes back
// to Idle and does not auto-requeue.
func (svc *Service) NextChat(ctx context.Context, connID string) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	conn, err := svc.registry.Get(connID)
	if err != nil {
		return errors.Join(ErrNotFound, err)
	}
	if conn.State != model.StateMatched {
		return ErrNoActiveSession
	}
	svc.teardownRoomLocked(ctx, conn)
	svc.matchLocked(ctx, conn, conn.Filters)
	return nil
}

// HandleSignal routes sdp, ice-candidate and chat-message events through
// the relay. Valid only in Matched state.
func (svc *Service) HandleSignal(ctx context.Context, connID, kind string, payload json.RawMessage) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	conn, err := svc.registry.Get(connID)
	if err != nil {
		return errors.Join(ErrNotFound, err)
	}
	if conn.State != model.StateMatched {
		return ErrNoActiveSession
	}
	if err = svc.relay.Relay(ctx, kind, connID, payload); err != nil {
		if errors.Is(err, relay.ErrNoActiveSession) {
			return errors.Join(ErrNoActiveSession, err)
		}
		return errors.Join(ErrRelay, err)
	}
	return nil
}

// matchLocked runs one match attempt for conn and commits the result.
// Liveness of the waiting side is re-checked against the registry right
// before the room is created: a disconnect may race the match decision,
// and committing it anyway would leave a phantom room. The survivor is
// returned to the queue instead.
func (svc *Service) matchLocked(ctx context.Context, conn *model.Connection, filters model.Filters) {
	for {
		match, ok := svc.matcher.TryMatch(conn, filters)
		if !ok {
			conn.State = model.StateQueued
			return
		}

		peer := match.Existing.Conn
		if _, err := svc.registry.Get(peer.ID); err != nil {
			svc.logger.Debug().
				Str("connID", conn.ID).
				Str("peerConnID", peer.ID).
				Msg("matched peer is gone, retrying")
			continue
		}

		room := svc.store.CreateRoom(match)
		for _, c := range []*model.Connection{room.P1, room.P2} {
			c.State = model.StateMatched
			c.RoomID = room.ID
			c.Role = room.RoleOf(c.ID)
		}
		svc.logger.Debug().
			Str("roomID", room.ID).
			Str("p1", room.P1.ID).
			Str("p2", room.P2.ID).
			Msg("room created")

		svc.notify(ctx, room.P1, envelope(model.EventMatched, model.MatchedPayload{
			RoomID:     room.ID,
			Role:       model.RoleP1,
			PeerUserID: room.P2.UserID,
		}))
		svc.notify(ctx, room.P2, envelope(model.EventMatched, model.MatchedPayload{
			RoomID:     room.ID,
			Role:       model.RoleP2,
			PeerUserID: room.P1.UserID,
		}))
		return
	}
}

// teardownRoomLocked closes conn's room and resets both participants to
// Idle. The non-initiating peer gets exactly one session-ended event;
// CloseRoom being idempotent makes racing teardown triggers safe.
func (svc *Service) teardownRoomLocked(ctx context.Context, conn *model.Connection) {
	room, err := svc.store.GetRoomByConnection(conn.ID)
	if err != nil {
		resetToIdle(conn)
		return
	}
	svc.store.CloseRoom(room.ID)

	peer := room.Other(conn.ID)
	resetToIdle(conn)
	resetToIdle(peer)
	svc.notify(ctx, peer, envelope(model.EventSessionEnded, nil))

	svc.logger.Debug().
		Str("roomID", room.ID).
		Str("by", conn.ID).
		Msg("room closed")
}

// NotifyError emits a best-effort error event to a single connection.
func (svc *Service) NotifyError(ctx context.Context, connID, code, message string) {
	conn, err := svc.registry.Get(connID)
	if err != nil {
		return
	}
	svc.notify(ctx, conn, envelope(model.EventError, model.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}

func (svc *Service) notify(ctx context.Context, conn *model.Connection, env model.Envelope) {
	tCh := time.NewTimer(defaultNotifyTimeout)
	select {
	case <-ctx.Done():
	case <-tCh.C:
		svc.logger.Error().
			Str("connID", conn.ID).
			Str("type", env.Type).
			Msg("dead endpoint, notification dropped")
	case conn.TX <- env:
	}
	tCh.Stop()
}

// broadcastOnline pushes the current online count to every connection.
// Slow wires are skipped rather than awaited.
func (svc *Service) broadcastOnline(ctx context.Context) {
	env := envelope(model.EventOnlineCount, model.OnlineCountPayload{Count: svc.registry.Count()})
	for _, conn := range svc.registry.Connections() {
		select {
		case <-ctx.Done():
			return
		case conn.TX <- env:
		default:
		}
	}
}

// Stats is a point-in-time snapshot for the REST API.
type Stats struct {
	Online int `json:"online"`
	Queued int `json:"queued"`
	Rooms  int `json:"rooms"`
}

func (svc *Service) Stats() Stats {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	st := Stats{
		Online: svc.registry.Count(),
		Queued: svc.queue.Len(),
		Rooms:  svc.store.Count(),
	}
	if svc.logger.GetLevel() <= zerolog.TraceLevel {
		svc.logger.Trace().
			Str("queue", spew.Sdump(svc.queue.Entries())).
			Str("rooms", spew.Sdump(svc.store.Rooms())).
			Msg("stats snapshot")
	}
	return st
}

func resetToIdle(conn *model.Connection) {
	conn.State = model.StateIdle
	conn.RoomID = ""
	conn.Role = ""
}

func envelope(eventType string, payload any) model.Envelope {
	env := model.Envelope{Type: eventType}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			env.Payload = b
		}
	}
	return env
}
