package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/camroulette/signaling/backend/model"
	"github.com/google/uuid"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
)

// Store owns the set of active rooms. Rooms are indexed both by room id
// and by participant connection id.
type Store struct {
	mx     *sync.Mutex
	rooms  map[string]*model.Room
	byConn map[string]*model.Room
}

func NewStore() *Store {
	return &Store{
		mx:     &sync.Mutex{},
		rooms:  make(map[string]*model.Room),
		byConn: make(map[string]*model.Room),
	}
}

// CreateRoom consumes a match and creates the room. The side that was
// already waiting becomes p1 and therefore sends the initial SDP offer;
// the arriving side becomes p2. Fixing roles here lets both ends agree on
// the offer initiator without a negotiation round.
func (s *Store) CreateRoom(match *model.Match) *model.Room {
	s.mx.Lock()
	defer s.mx.Unlock()

	room := &model.Room{
		ID:        uuid.NewString(),
		P1:        match.Existing.Conn,
		P2:        match.Arriving.Conn,
		CreatedAt: time.Now(),
	}
	s.rooms[room.ID] = room
	s.byConn[room.P1.ID] = room
	s.byConn[room.P2.ID] = room
	return room
}

func (s *Store) GetRoom(roomID string) (*model.Room, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) GetRoomByConnection(connID string) (*model.Room, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	room, ok := s.byConn[connID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// CloseRoom removes the room from the active set. Closing an unknown or
// already-closed room is a no-op: teardown triggers (disconnect, end,
// next) may race, and the second one must not fail.
func (s *Store) CloseRoom(roomID string) {
	s.mx.Lock()
	defer s.mx.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(s.byConn, room.P1.ID)
	delete(s.byConn, room.P2.ID)
	delete(s.rooms, roomID)
}

// AppendMessage records a chat message in the room's transient log.
func (s *Store) AppendMessage(roomID string, msg model.ChatMessage) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		room.Messages = append(room.Messages, msg)
	}
}

// Count returns the number of active rooms.
func (s *Store) Count() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.rooms)
}

// Rooms returns a snapshot of the active room set.
func (s *Store) Rooms() []*model.Room {
	s.mx.Lock()
	defer s.mx.Unlock()

	rooms := make([]*model.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
